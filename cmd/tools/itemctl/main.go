package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"inshokuten-api/pkg/client"
)

const usage = `Usage: itemctl [flags] <command> [args]

Commands:
  list                             print all items
  add -id N -name S -price P       create an item, optionally with -image file.jpg
  update -name S -price P <id>     replace name and price of an item
  delete <id>                      remove an item
  upload <id> <file.jpg>           store the image for an item

Flags:
  -url <base>     API base URL (default: $ITEMCTL_URL or http://localhost:3001)
  -table <name>   item table (default: TestTable)
  -timeout <d>    request timeout (default: 30s)
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "itemctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("itemctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	baseURL := os.Getenv("ITEMCTL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3001"
	}
	fs.StringVar(&baseURL, "url", baseURL, "")
	table := fs.String("table", "TestTable", "")
	timeout := fs.Duration("timeout", 30*time.Second, "")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	c, err := client.New(client.Config{BaseURL: baseURL, Table: *table, Timeout: *timeout})
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return list(ctx, c, out)
	case "add":
		return add(ctx, c, rest, out)
	case "update":
		return update(ctx, c, rest, out)
	case "delete":
		return remove(ctx, c, rest, out)
	case "upload":
		if len(rest) != 2 {
			return fmt.Errorf("upload: want <id> <file.jpg>")
		}
		return upload(ctx, c, rest[0], rest[1], out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(ctx context.Context, c *client.Client, out io.Writer) error {
	items, err := c.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, it := range items {
		name, price := "-", "-"
		if it.Name != nil {
			name = *it.Name
		}
		if it.Price != nil {
			price = it.Price.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", it.ID, name, price)
	}
	return tw.Flush()
}

func add(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(out)
	id := fs.String("id", "", "")
	name := fs.String("name", "", "")
	price := fs.String("price", "", "")
	image := fs.String("image", "", "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := client.CreateRequest{Name: name, Price: client.Coerce(*price)}
	if *id != "" {
		req.ID = client.Coerce(*id)
	}
	created, err := c.Create(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %d\n", created.ID)

	if *image == "" {
		return nil
	}
	return upload(ctx, c, strconv.FormatInt(created.ID, 10), *image, out)
}

func update(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(out)
	name := fs.String("name", "", "")
	price := fs.String("price", "", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := argID(fs.Args())
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	ok, err := c.Update(ctx, id, client.UpdateRequest{Name: name, Price: client.Coerce(*price)})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %d not found", id)
	}
	fmt.Fprintf(out, "updated %d\n", id)
	return nil
}

func remove(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	id, err := argID(args)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	ok, err := c.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %d not found", id)
	}
	fmt.Fprintf(out, "deleted %d\n", id)
	return nil
}

func upload(ctx context.Context, c *client.Client, id, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := c.UploadImage(ctx, id, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded %s\n", res.Filename)
	return nil
}

func argID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("want exactly one <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}
