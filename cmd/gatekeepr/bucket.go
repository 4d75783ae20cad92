package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/client"
)

var (
	bucketType      string
	bucketMetadata  string
	bucketRecursive bool
)

// bucket command group
var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Manage policy buckets",
}

var bucketSetCmd = &cobra.Command{
	Use:   "set BUCKET_ID",
	Short: "Create a bucket or replace its default result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := parseResult(bucketType, bucketMetadata)
		if err != nil {
			return err
		}

		a := client.NewAdmin(adminSocket)
		defer a.Close()

		if err := a.InsertOrUpdateBucket(args[0], def); err != nil {
			return err
		}
		fmt.Printf("Bucket %q set with default %s\n", args[0], def.Type)
		return nil
	},
}

var bucketRemoveCmd = &cobra.Command{
	Use:   "remove BUCKET_ID",
	Short: "Remove a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := client.NewAdmin(adminSocket)
		defer a.Close()

		if err := a.RemoveBucket(args[0], bucketRecursive); err != nil {
			return err
		}
		fmt.Printf("Bucket %q removed\n", args[0])
		return nil
	},
}

func init() {
	bucketSetCmd.Flags().StringVar(&bucketType, "type", "deny", "Default result type (allow, deny, none, or numeric)")
	bucketSetCmd.Flags().StringVar(&bucketMetadata, "metadata", "", "Default result metadata")
	bucketRemoveCmd.Flags().BoolVar(&bucketRecursive, "recursive", false, "Also drop policies pointing at the bucket")

	bucketCmd.AddCommand(bucketSetCmd)
	bucketCmd.AddCommand(bucketRemoveCmd)
}
