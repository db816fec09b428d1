package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/andreyvit/fowl"
	"github.com/andreyvit/fowl/internal/config"
	"github.com/andreyvit/fowl/tuple"
)

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "print the value stored at a path",
	ArgsUsage: "PATH",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "dotted field to keep (repeatable)"},
	},
	Action: func(c *cli.Context) error {
		path, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			v, err := db.Get(c.Context, path, c.StringSlice("field")...)
			if err != nil {
				return err
			}
			return output(c.App.Writer, cfg, v)
		})
	},
}

var putCommand = &cli.Command{
	Name:      "put",
	Usage:     "write a JSON value at a path",
	ArgsUsage: "PATH JSON",
	Action: func(c *cli.Context) error {
		path, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		v, err := jsonArg(c, 1)
		if err != nil {
			return err
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			return db.Put(c.Context, path, v)
		})
	},
}

var createCommand = &cli.Command{
	Name:      "create",
	Usage:     "store a JSON object as a new document and print its id",
	ArgsUsage: "COLLECTION JSON",
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		v, err := jsonArg(c, 1)
		if err != nil {
			return err
		}
		doc, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("document must be a JSON object")
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			id, err := db.Create(c.Context, coll, doc)
			if err != nil {
				return err
			}
			return output(c.App.Writer, cfg, id)
		})
	},
}

var removeCommand = &cli.Command{
	Name:      "remove",
	Aliases:   []string{"rm"},
	Usage:     "delete a path and everything below it",
	ArgsUsage: "PATH",
	Action: func(c *cli.Context) error {
		path, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			return db.Remove(c.Context, path)
		})
	},
}

var findCommand = &cli.Command{
	Name:      "find",
	Usage:     "print the documents whose fields equal those of a JSON object",
	ArgsUsage: "COLLECTION [JSON]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "dotted field to keep (repeatable)"},
	},
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		var where fowl.Document
		if c.NArg() > 1 {
			v, err := jsonArg(c, 1)
			if err != nil {
				return err
			}
			var ok bool
			if where, ok = v.(map[string]any); !ok {
				return fmt.Errorf("criteria must be a JSON object")
			}
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			docs, err := db.Find(c.Context, coll, where, c.StringSlice("field")...)
			if err != nil {
				return err
			}
			return output(c.App.Writer, cfg, docs)
		})
	},
}

var queryCommand = &cli.Command{
	Name:      "query",
	Usage:     "run a query with comparison conditions",
	ArgsUsage: "COLLECTION",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "where", Aliases: []string{"w"}, Usage: "condition like age>=30 or name=\"Joshua\" (repeatable, applied in order)"},
		&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "dotted field to keep (repeatable)"},
		&cli.StringSliceFlag{Name: "sort", Usage: "dotted field to sort by, prefixed with - for descending (repeatable)"},
		&cli.IntFlag{Name: "skip"},
		&cli.IntFlag{Name: "limit"},
	},
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		opts := fowl.QueryOptions{Skip: c.Int("skip"), Limit: c.Int("limit")}
		for _, s := range c.StringSlice("sort") {
			field, desc := strings.CutPrefix(s, "-")
			opts.Sort = append(opts.Sort, fowl.SortField{Field: field, Desc: desc})
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			q := db.Query(coll, c.StringSlice("field"), opts)
			for _, w := range c.StringSlice("where") {
				if err := addCondition(q, w); err != nil {
					return err
				}
			}
			docs, err := q.All(c.Context)
			if err != nil {
				return err
			}
			return output(c.App.Writer, cfg, docs)
		})
	},
}

var addIndexCommand = &cli.Command{
	Name:      "add-index",
	Usage:     "index a field of a collection",
	ArgsUsage: "COLLECTION FIELD",
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		field := c.Args().Get(1)
		if field == "" {
			return fmt.Errorf("missing FIELD")
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			return db.AddIndex(c.Context, coll, field)
		})
	},
}

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "verify the index entries of a collection",
	ArgsUsage: "COLLECTION",
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			if err := db.CheckIndexes(c.Context, coll); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "ok")
			return nil
		})
	},
}

var statsCommand = &cli.Command{
	Name:      "stats",
	Usage:     "count the documents and index entries of a collection",
	ArgsUsage: "COLLECTION",
	Action: func(c *cli.Context) error {
		coll, err := pathArg(c, 0)
		if err != nil {
			return err
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			s, err := db.Stats(c.Context, coll)
			if err != nil {
				return err
			}
			return output(c.App.Writer, cfg, map[string]any{
				"documents":     s.Documents,
				"keys":          s.Keys,
				"index_entries": s.IndexEntries,
				"data_size":     s.DataSize,
				"index_size":    s.IndexSize,
				"indexed":       fieldNames(db.IndexedFields(coll)),
			})
		})
	},
}

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "list every key and value",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "data", Usage: "only document keys"},
		&cli.BoolFlag{Name: "indexes", Usage: "only index entries"},
		&cli.BoolFlag{Name: "meta", Usage: "only index metadata"},
		&cli.BoolFlag{Name: "raw", Usage: "print values as hex"},
		&cli.BoolFlag{Name: "no-color"},
	},
	Action: func(c *cli.Context) error {
		var flags fowl.DumpFlags
		if c.Bool("data") {
			flags |= fowl.DumpData
		}
		if c.Bool("indexes") {
			flags |= fowl.DumpIndexes
		}
		if c.Bool("meta") {
			flags |= fowl.DumpMeta
		}
		if flags == 0 {
			flags = fowl.DumpAll
		}
		if c.Bool("raw") {
			flags |= fowl.DumpRaw
		}
		if c.Bool("no-color") {
			color.NoColor = true
		}
		return withDB(c, func(db *fowl.DB, cfg *config.Config) error {
			return dump(c, db, flags)
		})
	},
}

var (
	kindColor = map[fowl.DumpKind]func(string, ...any) string{
		fowl.DumpKindData:  color.RGB(128, 168, 196).SprintfFunc(),
		fowl.DumpKindIndex: color.RGB(196, 96, 16).SprintfFunc(),
		fowl.DumpKindMeta:  color.MagentaString,
	}
	valueColor = color.RGB(8, 196, 16).SprintfFunc()
)

func dump(c *cli.Context, db *fowl.DB, flags fowl.DumpFlags) error {
	w := c.App.Writer
	return db.DumpFunc(c.Context, flags, func(kind fowl.DumpKind, key tuple.Tuple, value any) error {
		var vs string
		if raw, ok := value.([]byte); ok {
			vs = fmt.Sprintf("%x", raw)
		} else if b, err := json.Marshal(value); err == nil {
			vs = string(b)
		} else {
			vs = fmt.Sprint(value)
		}
		_, err := fmt.Fprintf(w, "%s = %s\n", kindColor[kind]("%s", key.String()), valueColor("%s", vs))
		return err
	})
}

func pathArg(c *cli.Context, i int) (fowl.KeyPath, error) {
	s := c.Args().Get(i)
	if s == "" {
		return nil, fmt.Errorf("missing path argument (segments separated by /)")
	}
	return fowl.ParsePath(s), nil
}

func jsonArg(c *cli.Context, i int) (any, error) {
	s := c.Args().Get(i)
	if s == "" {
		return nil, fmt.Errorf("missing JSON argument")
	}
	return parseJSON(s)
}

func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON %q: %w", s, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON %q: trailing data", s)
	}
	return v, nil
}

var conditionOps = []struct {
	token string
	add   func(q *fowl.Query, field string, value any) *fowl.Query
}{
	// longer tokens first
	{">=", (*fowl.Query).Gte},
	{"<=", (*fowl.Query).Lte},
	{"!=", (*fowl.Query).Ne},
	{">", (*fowl.Query).Gt},
	{"<", (*fowl.Query).Lt},
	{"=", (*fowl.Query).Eql},
}

// addCondition parses field<op>value. The value is JSON if it parses as
// JSON and a plain string otherwise.
func addCondition(q *fowl.Query, s string) error {
	for _, op := range conditionOps {
		field, raw, ok := strings.Cut(s, op.token)
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		if field == "" || strings.ContainsAny(field, "<>!=") {
			continue
		}
		raw = strings.TrimSpace(raw)
		value, err := parseJSON(raw)
		if err != nil {
			value = raw
		}
		op.add(q, field, value)
		return nil
	}
	return fmt.Errorf("invalid condition %q", s)
}

func fieldNames(fields []fowl.FieldPath) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Dotted()
	}
	return names
}

func output(w io.Writer, cfg *config.Config, v any) error {
	switch cfg.Output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
