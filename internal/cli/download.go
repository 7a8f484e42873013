package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/discloud/discloud/internal/progress"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download and decrypt a stored file",
		Long: `Download a file by its catalog id.

Chunks are fetched in order, decrypted, and written to the output path.
Use '-' as the output to stream the plaintext to stdout.

Examples:
  # Download next to the current directory under the original name
  discloud download 6f1c9f0e-...

  # Download to an explicit path
  discloud download 6f1c9f0e-... -o /tmp/report.pdf

  # Stream to stdout
  discloud download 6f1c9f0e-... -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]

			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			file, err := cat.GetFile(fileID)
			if err != nil {
				return err
			}

			var out io.Writer
			var reporter progress.Reporter = progress.NewCLIProgress()
			switch outputPath {
			case "-":
				out = os.Stdout
				reporter = progress.NullProgress{}
			case "":
				outputPath = file.OriginalName
				fallthrough
			default:
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("cannot create %s: %w", outputPath, err)
				}
				defer f.Close()
				out = f
			}

			svc := newFileService(cat)
			reporter.Start(file.TotalSize, "Downloading "+file.OriginalName)

			var done int64
			_, err = svc.Download(cmd.Context(), fileID, out, func(_ int, plaintextBytes int64) {
				done += plaintextBytes
				reporter.Update(done)
			})
			if err != nil {
				reporter.Error(err)
				return err
			}
			reporter.Finish()

			if outputPath != "-" {
				fmt.Printf("Downloaded %s to %s (%d bytes)\n", file.OriginalName, outputPath, done)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path ('-' for stdout, default: original name)")

	return cmd
}
