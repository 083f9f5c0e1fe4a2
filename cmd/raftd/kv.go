package main

import (
	"fmt"

	"github.com/cuemby/raftd/pkg/adminhttp"
	"github.com/spf13/cobra"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write the replicated key/value state machine",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a key's value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := adminhttp.NewClient(adminAddr(cmd))
		value, found, err := c.KVGet(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Println(string(value))
		return nil
	},
}

var kvPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Replicate a key/value write through the command log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := adminhttp.NewClient(adminAddr(cmd))
		return c.KVPut(args[0], []byte(args[1]))
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Replicate a key deletion through the command log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := adminhttp.NewClient(adminAddr(cmd))
		return c.KVDelete(args[0])
	},
}

func init() {
	kvCmd.AddCommand(kvGetCmd, kvPutCmd, kvDeleteCmd)
}
