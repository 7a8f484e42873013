package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/discloud/discloud/internal/progress"
	"github.com/discloud/discloud/internal/services"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var backendName string
	var description string
	var fingerprint string
	var chunkSize int64
	var noResume bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file as encrypted chunks",
		Long: `Upload a file to a configured backend.

The file is sliced into chunks, each chunk is encrypted with a fresh
AES-256 key and posted as a message attachment. If an earlier upload of
the same file was interrupted, the upload resumes where it stopped.

Examples:
  # Upload with the default backend
  discloud upload data.tar.gz

  # Upload to a specific backend with a 1 MiB chunk size
  discloud upload data.tar.gz --backend archive --chunk-size 1048576

  # Force a fresh upload even if a resumable one exists
  discloud upload data.tar.gz --no-resume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot stat %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory, expected a file", path)
			}

			cat, cfg, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if backendName == "" {
				backendName = cfg.DefaultBackend
			}
			if chunkSize == 0 {
				chunkSize = cfg.Transfer.ChunkSize
			}
			switch {
			case noResume:
				fingerprint = ""
			case fingerprint == "":
				fingerprint = clientFingerprint(path, info)
			}

			src, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", path, err)
			}
			defer src.Close()

			svc := newFileService(cat)
			reporter := progress.NewCLIProgress()
			reporter.Start(info.Size(), "Uploading "+filepath.Base(path))

			var done int64
			file, err := svc.Upload(cmd.Context(), services.UploadParams{
				Source:            src,
				Filename:          filepath.Base(path),
				BackendName:       backendName,
				ChunkSize:         chunkSize,
				Description:       description,
				ClientFingerprint: fingerprint,
				Progress: func(_ int, plaintextBytes int64) {
					done += plaintextBytes
					reporter.Update(done)
				},
			})
			if err != nil {
				reporter.Error(err)
				return err
			}
			reporter.Finish()

			fmt.Printf("Uploaded %s (%d bytes) to backend %s\n", file.OriginalName, file.TotalSize, file.BackendName)
			fmt.Printf("File ID: %s\n", file.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&backendName, "backend", "b", "", "Backend name (default from config)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-text description stored with the file")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "Plaintext chunk size in bytes (default from config)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Resume fingerprint (default derived from the file)")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Start fresh even when a resumable upload exists")

	return cmd
}

// clientFingerprint derives a stable resume identity from the file's path,
// size, and modification time. Re-running the same upload after an
// interruption yields the same fingerprint; an edited file does not.
func clientFingerprint(path string, info os.FileInfo) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())))
	return hex.EncodeToString(sum[:16])
}
