package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/raftd/pkg/adminhttp"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage cluster membership",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <id> <host> <port>",
	Short: "Add a node to the cluster via a replicated configuration change",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid node id %q: %w", args[0], err)
		}
		port, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[2], err)
		}
		c := adminhttp.NewClient(adminAddr(cmd))
		return c.AddNode(id, args[1], uint16(port))
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a node from the cluster via a replicated configuration change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid node id %q: %w", args[0], err)
		}
		c := adminhttp.NewClient(adminAddr(cmd))
		return c.RemoveNode(id)
	},
}

func init() {
	nodeCmd.AddCommand(nodeAddCmd, nodeRemoveCmd)
}
