// zarrinfo prints the metadata of a node in a zarr hierarchy stored in a
// local directory.
//
// The node is resolved from whichever metadata documents are present:
// zarr.json for version 3 nodes, .zarray/.zgroup/.zattrs for version 2.
// --node-type and --zarr-format narrow the documents considered.
//
// Defaults may be kept in a YAML file named by --config or by the
// ZARRINFO_CONFIG environment variable. Flags override file values.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/qri-io/zarr"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		format     string
		nodeType   string
		zarrFormat int
		logLevel   string
		chunkKey   string
		members    bool
	)

	flagSet := pflag.NewFlagSet("zarrinfo", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $"+configEnv+")")
	flagSet.StringVarP(&format, "format", "f", "", "output format: json, yaml or info")
	flagSet.StringVar(&nodeType, "node-type", "", "expected node type: array or group")
	flagSet.IntVar(&zarrFormat, "zarr-format", 0, "expected zarr format: 2 or 3")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.StringVar(&chunkKey, "chunk-key", "", "print the store key of the chunk at comma separated coordinates")
	flagSet.BoolVar(&members, "members", false, "list the members of a group")
	flagSet.Bool("version", false, "print the version and exit")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if v, _ := flagSet.GetBool("version"); v {
		fmt.Fprintf(stdout, "zarrinfo %s\n", zarr.Version)
		return nil
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("format") {
		cfg.Format = format
	}
	if flagSet.Changed("node-type") {
		cfg.NodeType = nodeType
	}
	if flagSet.Changed("zarr-format") {
		cfg.ZarrFormat = zarrFormat
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) < 1 || len(rest) > 2 {
		printHelp(stderr, flagSet)
		return fmt.Errorf("expected a store directory and an optional node path")
	}
	nodePath := ""
	if len(rest) == 2 {
		nodePath = rest[1]
	}

	level, _ := cfg.level()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	nt, _ := zarr.ParseNodeType(cfg.NodeType)
	zf, _ := zarr.ParseZarrFormat(cfg.ZarrFormat)

	store, err := zarr.NewLocalStore(rest[0])
	if err != nil {
		return err
	}
	node, err := zarr.OpenWith(ctx, &zarr.Resolver{Logger: logger}, store, nodePath, nt, zf, zarr.ModeRead)
	if err != nil {
		return err
	}
	logger.Info("opened node", "store", store.String(), "path", node.Path(), "node_type", string(node.NodeType()))

	switch {
	case chunkKey != "":
		return printChunkKey(stdout, node, chunkKey)
	case members:
		names, err := node.Members(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	return printMetadata(stdout, node, cfg.Format)
}

func printChunkKey(w io.Writer, node *zarr.Node, coords string) error {
	arr, err := node.AsArray()
	if err != nil {
		return err
	}
	var cs []int
	for _, s := range strings.Split(coords, ",") {
		c, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%w: coordinate %q is not an integer", zarr.ErrInvalidChunkKey, s)
		}
		cs = append(cs, c)
	}
	key, err := arr.ChunkKey(cs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, key)
	return err
}

func printMetadata(w io.Writer, node *zarr.Node, format string) error {
	if format == "info" {
		_, err := io.WriteString(w, node.Info())
		return err
	}

	v, err := zarr.EncodeValue(node.Metadata())
	if err != nil {
		return err
	}
	if format == "yaml" {
		data, err := yaml.Marshal(yamlValue(v))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	data, err := zarr.MarshalValue(v)
	if err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// yamlValue converts the numbers of a value tree to Go numbers so they are
// written unquoted
func yamlValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = yamlValue(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = yamlValue(el)
		}
		return out
	}
	return v
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `zarrinfo prints the metadata of a zarr array or group.

Usage:
  zarrinfo [flags] <store-dir> [path]

Flags:
%s`, flagSet.FlagUsages())
}
