package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Catalog operations (list, delete)",
		Long:  `Commands for managing the local file catalog.`,
	}

	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())

	return filesCmd
}

// newFilesListCmd creates the 'files list' command.
func newFilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			files, err := cat.ListFiles()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No files stored.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tSTATUS\tBACKEND\tUPLOADED")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					f.ID, f.OriginalName, f.TotalSize, f.Status, f.BackendName,
					f.UploadedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

// newFilesDeleteCmd creates the 'files delete' command.
func newFilesDeleteCmd() *cobra.Command {
	var keepRemote bool

	cmd := &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a stored file",
		Long: `Delete a file's remote chunks, then its catalog rows.

Remote deletion runs first: if the backend refuses, the catalog record
stays so the command can be retried. Chunks the backend no longer has
count as already deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]

			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if keepRemote {
				file, err := cat.GetFile(fileID)
				if err != nil {
					return err
				}
				if err := cat.DeleteFile(fileID); err != nil {
					return err
				}
				fmt.Printf("Removed %s from the catalog; remote chunks kept.\n", file.OriginalName)
				return nil
			}

			svc := newFileService(cat)
			if err := svc.Delete(cmd.Context(), fileID); err != nil {
				return err
			}
			fmt.Printf("Deleted file %s\n", fileID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Drop only the catalog rows, leave remote chunks in place")

	return cmd
}
