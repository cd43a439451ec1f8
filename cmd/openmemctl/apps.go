package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	appsCmd := &cobra.Command{Use: "apps", Short: "App operations"}

	// list
	var listUser string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's apps with usage counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listUser == "" {
				return fmt.Errorf("--user required")
			}
			data, err := doGet(fmt.Sprintf("/api/v1/users/%s/apps", listUser), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "User handle (required)")
	_ = listCmd.MarkFlagRequired("user")
	appsCmd.AddCommand(listCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get APP_ID",
		Short: "Get app by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/v1/apps/"+args[0], nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	appsCmd.AddCommand(getCmd)

	// bind
	var bindUser, bindEndpoint, bindDevice string
	bindCmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind a websocket endpoint to a user, creating the app if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bindUser == "" || bindEndpoint == "" {
				return fmt.Errorf("--user and --endpoint required")
			}
			payload := map[string]interface{}{"endpointUrl": bindEndpoint}
			if bindDevice != "" {
				payload["deviceName"] = bindDevice
			}
			data, err := doPostJSON(fmt.Sprintf("/api/v1/users/%s/bind-endpoint", bindUser), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	bindCmd.Flags().StringVarP(&bindUser, "user", "u", "", "User handle (required)")
	bindCmd.Flags().StringVarP(&bindEndpoint, "endpoint", "e", "", "Websocket endpoint URL (required)")
	bindCmd.Flags().StringVarP(&bindDevice, "device", "d", "", "Device name")
	_ = bindCmd.MarkFlagRequired("user")
	_ = bindCmd.MarkFlagRequired("endpoint")
	appsCmd.AddCommand(bindCmd)

	// rename
	var renameUser, renameName string
	renameCmd := &cobra.Command{
		Use:   "rename APP_ID",
		Short: "Rename an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if renameUser == "" || renameName == "" {
				return fmt.Errorf("--user and --name required")
			}
			payload := map[string]interface{}{"userId": renameUser, "name": renameName}
			data, err := doPutJSON("/api/v1/apps/"+args[0]+"/name", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	renameCmd.Flags().StringVarP(&renameUser, "user", "u", "", "User handle (required)")
	renameCmd.Flags().StringVarP(&renameName, "name", "n", "", "New app name (required)")
	_ = renameCmd.MarkFlagRequired("user")
	_ = renameCmd.MarkFlagRequired("name")
	appsCmd.AddCommand(renameCmd)

	// delete
	var deleteUser string
	deleteCmd := &cobra.Command{
		Use:   "delete APP_ID",
		Short: "Hard-delete an app and every memory it created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteUser == "" {
				return fmt.Errorf("--user required")
			}
			data, err := doDelete("/api/v1/apps/"+args[0], map[string]string{"user_id": deleteUser})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	deleteCmd.Flags().StringVarP(&deleteUser, "user", "u", "", "User handle (required)")
	_ = deleteCmd.MarkFlagRequired("user")
	appsCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(appsCmd)
}
