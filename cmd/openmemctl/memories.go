package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	memoriesCmd := &cobra.Command{Use: "memories", Short: "Memory operations"}

	// add
	var addUser, addContent, addAgent string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addUser == "" || addContent == "" {
				return fmt.Errorf("--user and --content required")
			}
			payload := map[string]interface{}{"content": addContent}
			if addAgent != "" {
				payload["agentId"] = addAgent
			}
			data, err := doPostJSON(fmt.Sprintf("/api/v1/users/%s/memories", addUser), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&addUser, "user", "u", "", "User handle (required)")
	addCmd.Flags().StringVarP(&addContent, "content", "c", "", "Memory content (required)")
	addCmd.Flags().StringVarP(&addAgent, "agent", "g", "", "Agent hint used to attribute the creating app")
	_ = addCmd.MarkFlagRequired("user")
	_ = addCmd.MarkFlagRequired("content")
	memoriesCmd.AddCommand(addCmd)

	// list
	var listUser, listApp string
	var listArchived bool
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memories for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listUser == "" {
				return fmt.Errorf("--user required")
			}
			q := map[string]string{}
			if listApp != "" {
				q["app_id"] = listApp
			}
			if listArchived {
				q["include_archived"] = "true"
			}
			if listLimit > 0 {
				q["limit"] = fmt.Sprintf("%d", listLimit)
			}
			data, err := doGet(fmt.Sprintf("/api/v1/users/%s/memories", listUser), q)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "User handle (required)")
	listCmd.Flags().StringVarP(&listApp, "app", "a", "", "Filter by app id (also scopes access)")
	listCmd.Flags().BoolVar(&listArchived, "include-archived", false, "Include archived memories")
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 0, "Max rows to return")
	_ = listCmd.MarkFlagRequired("user")
	memoriesCmd.AddCommand(listCmd)

	// search
	var searchUser, searchQuery, searchApp string
	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Hybrid search over a user's memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if searchUser == "" || searchQuery == "" {
				return fmt.Errorf("--user and --query required")
			}
			q := map[string]string{"q": searchQuery}
			if searchApp != "" {
				q["app_id"] = searchApp
			}
			if searchLimit > 0 {
				q["limit"] = fmt.Sprintf("%d", searchLimit)
			}
			data, err := doGet(fmt.Sprintf("/api/v1/users/%s/memories/search", searchUser), q)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	searchCmd.Flags().StringVarP(&searchUser, "user", "u", "", "User handle (required)")
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query text (required)")
	searchCmd.Flags().StringVarP(&searchApp, "app", "a", "", "Calling app id (scopes access)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Number of results")
	_ = searchCmd.MarkFlagRequired("user")
	_ = searchCmd.MarkFlagRequired("query")
	memoriesCmd.AddCommand(searchCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get MEMORY_ID",
		Short: "Get memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/v1/memories/"+args[0], nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	memoriesCmd.AddCommand(getCmd)

	// set-state
	var stateUser, stateValue string
	stateCmd := &cobra.Command{
		Use:   "set-state MEMORY_ID",
		Short: "Transition a memory (active, paused, archived, deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateUser == "" || stateValue == "" {
				return fmt.Errorf("--user and --state required")
			}
			payload := map[string]interface{}{"userId": stateUser, "state": stateValue}
			data, err := doPostJSON("/api/v1/memories/"+args[0]+"/state", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	stateCmd.Flags().StringVarP(&stateUser, "user", "u", "", "User handle (required)")
	stateCmd.Flags().StringVarP(&stateValue, "state", "t", "", "Target state (required)")
	_ = stateCmd.MarkFlagRequired("user")
	_ = stateCmd.MarkFlagRequired("state")
	memoriesCmd.AddCommand(stateCmd)

	// delete
	var deleteUser string
	deleteCmd := &cobra.Command{
		Use:   "delete MEMORY_ID",
		Short: "Soft-delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteUser == "" {
				return fmt.Errorf("--user required")
			}
			data, err := doDelete("/api/v1/memories/"+args[0], map[string]string{"user_id": deleteUser})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	deleteCmd.Flags().StringVarP(&deleteUser, "user", "u", "", "User handle (required)")
	_ = deleteCmd.MarkFlagRequired("user")
	memoriesCmd.AddCommand(deleteCmd)

	// history
	historyCmd := &cobra.Command{
		Use:   "history MEMORY_ID",
		Short: "Show the state transition history of a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/v1/memories/"+args[0]+"/history", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	memoriesCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(memoriesCmd)
}
