// Command sawitdb is a small CLI front-end over the engine package: it
// opens (or creates) a database file and exposes table operations as
// subcommands, in place of the teacher's SQL REPL.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sawitdb/internal/config"
	"sawitdb/internal/engine"
	"sawitdb/internal/page"
	"sawitdb/internal/predicate"
	"sawitdb/internal/rowcodec"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "sawitdb",
		Short: "SawitDB storage engine CLI",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (overrides SAWITDB_PATH)")

	root.AddCommand(
		createTableCmd(),
		dropTableCmd(),
		listTablesCmd(),
		insertCmd(),
		selectCmd(),
		updateCmd(),
		deleteCmd(),
		createIndexCmd(),
		inspectCmd(),
	)

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("sawitdb")
	}
}

func openEngine() (*engine.Engine, error) {
	cfg, err := config.Load(dbPath)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("no database path: pass --db or set SAWITDB_PATH")
	}
	return engine.Open(cfg)
}

func createTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-table <name>",
		Short: "create an empty table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.CreateTable(args[0], false)
		},
	}
}

func dropTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-table <name>",
		Short: "drop a table's catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.DropTable(args[0])
		},
	}
}

func listTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tables",
		Short: "list every table in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			names, err := e.ListTables()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

// fieldFlags are repeated --field name=value[:type] pairs, the CLI's
// substitute for a row literal. Supported types: string (default),
// int, float, bool, ts (timestamp), null.
var fieldFlags []string

func parseFields(raw []string) (rowcodec.Record, error) {
	var rec rowcodec.Record
	for _, f := range raw {
		name, rest, ok := strings.Cut(f, "=")
		if !ok {
			return rec, fmt.Errorf("malformed --field %q (want name=value or name=value:type)", f)
		}
		value, typ, _ := strings.Cut(rest, ":")
		v, err := parseValue(value, typ)
		if err != nil {
			return rec, fmt.Errorf("field %q: %w", name, err)
		}
		rec.Set(name, v)
	}
	return rec, nil
}

func parseValue(value, typ string) (rowcodec.Value, error) {
	switch typ {
	case "", "string":
		return rowcodec.StringVal(value), nil
	case "int":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return rowcodec.Value{}, err
		}
		return rowcodec.IntVal(n), nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return rowcodec.Value{}, err
		}
		return rowcodec.FloatVal(f), nil
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return rowcodec.Value{}, err
		}
		return rowcodec.BoolVal(b), nil
	case "ts":
		return rowcodec.TimestampVal(value), nil
	case "null":
		return rowcodec.Null(), nil
	default:
		return rowcodec.Value{}, fmt.Errorf("unknown type %q", typ)
	}
}

func insertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <table>",
		Short: "insert one row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseFields(fieldFlags)
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			id, err := e.Insert(args[0], rec)
			if err != nil {
				return err
			}
			fmt.Printf("inserted at page=%d slot=%d\n", id.Page, id.Slot)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&fieldFlags, "field", nil, "name=value[:type], repeatable")
	return cmd
}

var whereColumn, whereValue, whereOp string

func parseWhere() (*predicate.Node, error) {
	if whereColumn == "" {
		return nil, nil
	}
	value, typ, _ := strings.Cut(whereValue, ":")
	v, err := parseValue(value, typ)
	if err != nil {
		return nil, err
	}
	op, err := parseOp(whereOp)
	if err != nil {
		return nil, err
	}
	return predicate.Leaf(whereColumn, op, v), nil
}

func parseOp(s string) (predicate.Op, error) {
	switch s {
	case "", "eq", "=":
		return predicate.Eq, nil
	case "ne", "!=":
		return predicate.Ne, nil
	case "lt", "<":
		return predicate.Lt, nil
	case "le", "<=":
		return predicate.Le, nil
	case "gt", ">":
		return predicate.Gt, nil
	case "ge", ">=":
		return predicate.Ge, nil
	case "like":
		return predicate.Like, nil
	default:
		return 0, fmt.Errorf("unsupported --where-op %q", s)
	}
}

var (
	selectColumns []string
	selectOrderBy []string
	selectLimit   int
	selectOffset  int
)

// parseOrderBy turns "col" or "col:desc" entries into engine.OrderBy
// keys, in the order given.
func parseOrderBy(raw []string) ([]engine.OrderBy, error) {
	keys := make([]engine.OrderBy, 0, len(raw))
	for _, r := range raw {
		col, dir, _ := strings.Cut(r, ":")
		switch dir {
		case "", "asc":
			keys = append(keys, engine.OrderBy{Column: col})
		case "desc":
			keys = append(keys, engine.OrderBy{Column: col, Descending: true})
		default:
			return nil, fmt.Errorf("unsupported --order-by direction %q (want asc or desc)", dir)
		}
	}
	return keys, nil
}

func selectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <table>",
		Short: "scan a table, optionally filtered, sorted, sliced, and projected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := parseWhere()
			if err != nil {
				return err
			}
			orderBy, err := parseOrderBy(selectOrderBy)
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			q := engine.SelectQuery{
				Table:    args[0],
				Columns:  selectColumns,
				Criteria: pred,
				OrderBy:  orderBy,
			}
			if selectLimit >= 0 {
				q.Limit = &selectLimit
			}
			if selectOffset >= 0 {
				q.Offset = &selectOffset
			}

			rows, err := e.Select(q)
			if err != nil {
				return err
			}
			for _, row := range rows {
				printRecord(row)
			}
			fmt.Printf("%d row(s)\n", len(rows))
			return nil
		},
	}
	addWhereFlags(cmd)
	cmd.Flags().StringArrayVar(&selectColumns, "column", nil, "column to project, repeatable (default: all columns)")
	cmd.Flags().StringArrayVar(&selectOrderBy, "order-by", nil, "column[:asc|desc] to sort by, repeatable")
	cmd.Flags().IntVar(&selectLimit, "limit", -1, "max rows to return (default: unlimited)")
	cmd.Flags().IntVar(&selectOffset, "offset", -1, "rows to skip before returning results")
	return cmd
}

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <table>",
		Short: "update every row matching a WHERE leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := parseWhere()
			if err != nil {
				return err
			}
			sets, err := parseFields(fieldFlags)
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			n, err := e.Update(args[0], pred, func(r rowcodec.Record) rowcodec.Record {
				for _, f := range sets.Fields {
					r.Set(f.Name, f.Val)
				}
				return r
			})
			if err != nil {
				return err
			}
			fmt.Printf("updated %d row(s)\n", n)
			return nil
		},
	}
	addWhereFlags(cmd)
	cmd.Flags().StringArrayVar(&fieldFlags, "set", nil, "name=value[:type], repeatable")
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <table>",
		Short: "delete every row matching a WHERE leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := parseWhere()
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			n, err := e.Delete(args[0], pred)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d row(s)\n", n)
			return nil
		},
	}
	addWhereFlags(cmd)
	return cmd
}

func createIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-index <table> <column>",
		Short: "build an in-memory index over table.column via a full scan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.CreateIndex(args[0], args[1])
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "print database file size and page count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := os.Stat(dbPathOrConfigured())
			if err != nil {
				return err
			}
			fmt.Printf("size: %s (%d bytes), %d page(s)\n",
				humanize.Bytes(uint64(info.Size())), info.Size(), info.Size()/page.Size)
			return nil
		},
	}
}

func dbPathOrConfigured() string {
	cfg, err := config.Load(dbPath)
	if err != nil {
		return dbPath
	}
	return cfg.Path
}

func addWhereFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&whereColumn, "where", "", "column name to filter on")
	cmd.Flags().StringVar(&whereValue, "where-value", "", "value[:type] to compare against")
	cmd.Flags().StringVar(&whereOp, "where-op", "eq", "comparison operator (eq, ne, lt, le, gt, ge, like)")
}

func printRecord(r rowcodec.Record) {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Name, formatValue(f.Val)))
	}
	fmt.Println(strings.Join(parts, " "))
}

func formatValue(v rowcodec.Value) string {
	switch v.Kind {
	case rowcodec.KindNull:
		return "null"
	case rowcodec.KindBool:
		return strconv.FormatBool(v.Bool)
	case rowcodec.KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case rowcodec.KindFloat64:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case rowcodec.KindString, rowcodec.KindTimestamp:
		return v.Str
	default:
		return "?"
	}
}
