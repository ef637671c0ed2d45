package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	bunstore "github.com/kartikbazzad/bunstore"
)

const shellHelp = `Commands:
  get <namespace> <key>                      read one item
  put <namespace> <key> <json>               write one item
  del <namespace> <key>                      delete one item
  search <prefix> [json-filter] [limit]      search items under a prefix
  ls [prefix] [depth]                        list namespaces
  help                                       show this help
  exit                                       leave the shell

Namespaces are dotted paths, e.g. users.u1.prefs`

// runShell reads commands until EOF or exit. Each line maps to one
// store wrapper call.
func runShell(ctx context.Context, store bunstore.Store) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("bunstore> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			return nil
		}
		if err := execLine(ctx, store, input); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func execLine(ctx context.Context, store bunstore.Store, input string) error {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Println(shellHelp)
		return nil
	case "get":
		if len(args) != 2 {
			return errors.New("usage: get <namespace> <key>")
		}
		item, err := bunstore.Get(ctx, store, splitNS(args[0]), args[1])
		if err != nil {
			return err
		}
		if item == nil {
			fmt.Println("(nil)")
			return nil
		}
		return printJSON(item)
	case "put":
		if len(args) < 3 {
			return errors.New("usage: put <namespace> <key> <json>")
		}
		raw := strings.Join(args[2:], " ")
		var value map[string]any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("value must be a JSON object: %w", err)
		}
		if err := bunstore.Put(ctx, store, splitNS(args[0]), args[1], value); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	case "del":
		if len(args) != 2 {
			return errors.New("usage: del <namespace> <key>")
		}
		if err := bunstore.Delete(ctx, store, splitNS(args[0]), args[1]); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	case "search":
		if len(args) < 1 {
			return errors.New("usage: search <prefix> [json-filter] [limit]")
		}
		opts := make([]bunstore.QueryOption, 0, 2)
		if len(args) >= 2 {
			var f map[string]any
			if err := json.Unmarshal([]byte(args[1]), &f); err != nil {
				return fmt.Errorf("filter must be a JSON object: %w", err)
			}
			opts = append(opts, bunstore.WithFilter(f))
		}
		if len(args) >= 3 {
			limit, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("limit: %w", err)
			}
			opts = append(opts, bunstore.WithLimit(limit))
		}
		items, err := bunstore.Search(ctx, store, splitNS(args[0]), opts...)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("(no matches)")
			return nil
		}
		return printJSON(items)
	case "ls":
		opts := make([]bunstore.QueryOption, 0, 2)
		if len(args) >= 1 {
			opts = append(opts, bunstore.WithMatch(bunstore.MatchPrefix, splitNS(args[0])...))
		}
		if len(args) >= 2 {
			depth, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("depth: %w", err)
			}
			opts = append(opts, bunstore.WithMaxDepth(depth))
		}
		namespaces, err := bunstore.ListNamespaces(ctx, store, opts...)
		if err != nil {
			return err
		}
		if len(namespaces) == 0 {
			fmt.Println("(empty)")
			return nil
		}
		for _, ns := range namespaces {
			fmt.Println(ns.String())
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func splitNS(s string) bunstore.Namespace {
	return strings.Split(s, ".")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
