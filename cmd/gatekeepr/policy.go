package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/client"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

var (
	policyBucket   string
	policyType     string
	policyMetadata string
	eraseBucket    string
	eraseRecursive bool
	listBucket     string
)

// policy command group
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policies",
}

var policySetCmd = &cobra.Command{
	Use:   "set CLIENT USER PRIVILEGE",
	Short: "Insert or update one policy",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := parseResult(policyType, policyMetadata)
		if err != nil {
			return err
		}

		a := client.NewAdmin(adminSocket)
		defer a.Close()

		policy := types.Policy{
			Key:    types.NewPolicyKey(args[0], args[1], args[2]),
			Result: result,
		}
		err = a.SetPolicies([]protocol.BucketedPolicy{{Bucket: policyBucket, Policy: policy}}, nil)
		if err != nil {
			return err
		}
		fmt.Println("Policy set")
		return nil
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete CLIENT USER PRIVILEGE",
	Short: "Delete one policy",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := client.NewAdmin(adminSocket)
		defer a.Close()

		key := types.NewPolicyKey(args[0], args[1], args[2])
		err := a.SetPolicies(nil, []protocol.BucketedKey{{Bucket: policyBucket, Key: key}})
		if err != nil {
			return err
		}
		fmt.Println("Policy deleted")
		return nil
	},
}

// erase command
var eraseCmd = &cobra.Command{
	Use:   "erase CLIENT USER PRIVILEGE",
	Short: "Erase every policy matching a filter",
	Long: `Removes every policy whose key matches the filter; a * component matches
any value. With --recursive, buckets reachable through redirections are
traversed as well.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := client.NewAdmin(adminSocket)
		defer a.Close()

		filter := types.NewPolicyKey(args[0], args[1], args[2])
		if err := a.Erase(eraseBucket, eraseRecursive, filter); err != nil {
			return err
		}
		fmt.Println("Policies erased")
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list [CLIENT USER PRIVILEGE]",
	Short: "List the policies of a bucket",
	Args:  cobra.RangeArgs(0, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.NewPolicyKey(types.Wildcard, types.Wildcard, types.Wildcard)
		if len(args) == 3 {
			filter = types.NewPolicyKey(args[0], args[1], args[2])
		}

		a := client.NewAdmin(adminSocket)
		defer a.Close()

		policies, err := a.ListPolicies(listBucket, filter)
		if err != nil {
			return err
		}
		for _, p := range policies {
			fmt.Println(formatPolicy(p))
		}
		return nil
	},
}

// descriptions command
var descriptionsCmd = &cobra.Command{
	Use:   "descriptions",
	Short: "List the policy types the daemon supports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := client.NewAdmin(adminSocket)
		defer a.Close()

		descriptions, err := a.ListDescriptions()
		if err != nil {
			return err
		}
		for _, d := range descriptions {
			fmt.Printf("0x%04X  %s\n", uint16(d.Type), d.Name)
		}
		return nil
	},
}

// monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [MAX]",
	Short: "Drain buffered monitor entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		max := 0
		if len(args) == 1 {
			if _, err := fmt.Sscanf(args[0], "%d", &max); err != nil {
				return fmt.Errorf("invalid entry count %q", args[0])
			}
		}

		a := client.NewAdmin(adminSocket)
		defer a.Close()

		entries, err := a.GetMonitorEntries(max)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %s;%s;%s -> %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Key.Client, e.Key.User, e.Key.Privilege, e.Result)
		}
		return nil
	},
}

func init() {
	policySetCmd.Flags().StringVar(&policyBucket, "bucket", "", "Owning bucket (default: root)")
	policySetCmd.Flags().StringVar(&policyType, "type", "deny", "Result type (allow, deny, none, bucket, or numeric)")
	policySetCmd.Flags().StringVar(&policyMetadata, "metadata", "", "Result metadata")
	policyDeleteCmd.Flags().StringVar(&policyBucket, "bucket", "", "Owning bucket (default: root)")
	eraseCmd.Flags().StringVar(&eraseBucket, "bucket", "", "Start bucket (default: root)")
	eraseCmd.Flags().BoolVar(&eraseRecursive, "recursive", false, "Traverse bucket redirections")
	listCmd.Flags().StringVar(&listBucket, "bucket", "", "Bucket to list (default: root)")

	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyDeleteCmd)
}
