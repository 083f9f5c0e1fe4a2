package main

import (
	"fmt"

	"github.com/cuemby/raftd/pkg/adminhttp"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cluster status as seen by the node at --admin-addr",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := adminhttp.NewClient(adminAddr(cmd))

	status, err := c.Status()
	if err != nil {
		return err
	}

	fmt.Printf("role:          %s\n", status.Role)
	fmt.Printf("term:          %d\n", status.Term)
	fmt.Printf("leader:        %d\n", status.Leader)
	fmt.Printf("commit_index:  %d\n", status.CommitIndex)
	fmt.Printf("applied_index: %d\n", status.AppliedIndex)
	fmt.Println("members:")
	for _, n := range status.Members {
		marker := " "
		if n.IsLeader {
			marker = "*"
		}
		fmt.Printf("  %s %d  %s:%d\n", marker, n.ID, n.Host, n.Port)
	}
	return nil
}
