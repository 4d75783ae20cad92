package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/client"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

var (
	checkBucket    string
	checkRecursive bool
	checkAdmin     bool
)

// check command
var checkCmd = &cobra.Command{
	Use:   "check CLIENT USER PRIVILEGE",
	Short: "Ask whether a (client, user, privilege) triple is permitted",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkAdmin {
			return runAdminCheck(args)
		}

		opts := []client.Option{}
		if clientSocket != "" {
			opts = append(opts, client.WithSocketPath(clientSocket))
		}
		c := client.New(opts...)
		defer c.Close()

		code := c.Check(client.NewSession(), args[0], args[1], args[2])
		switch code {
		case errors.CodeSuccess:
			fmt.Println("ALLOWED")
			return nil
		case errors.CodeAccessDenied:
			fmt.Println("DENIED")
			return nil
		default:
			return fmt.Errorf("check failed with code %d", code)
		}
	},
}

// runAdminCheck evaluates through the admin socket against any start bucket
func runAdminCheck(args []string) error {
	a := client.NewAdmin(adminSocket)
	defer a.Close()

	result, err := a.Check(checkBucket, checkRecursive, types.NewPolicyKey(args[0], args[1], args[2]))
	if err != nil {
		return err
	}
	fmt.Printf("%s", result.Type)
	if result.Metadata != "" {
		fmt.Printf(" (%s)", result.Metadata)
	}
	fmt.Println()
	return nil
}

func init() {
	checkCmd.Flags().BoolVar(&checkAdmin, "admin", false, "Evaluate through the admin socket")
	checkCmd.Flags().StringVar(&checkBucket, "bucket", "", "Start bucket for admin checks (default: root)")
	checkCmd.Flags().BoolVar(&checkRecursive, "recursive", true, "Follow bucket redirections in admin checks")
}
