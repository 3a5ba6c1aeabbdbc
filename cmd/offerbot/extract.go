package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/offer-assistant/internal/offers"
)

var extractWithStrategy bool

// extractCmd runs the extractor on text from a file or stdin
var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print the offers found in assistant text as JSON",
	Long: `Reads assistant text from the given file, or stdin when no file (or "-")
is given, and prints the extracted offers as JSON. No network access.

Example:
  offerbot extract reply.txt
  echo "Je recommande l'offre: Pack Pro 50GB" | offerbot extract --with-strategy`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if extractWithStrategy {
		return enc.Encode(offers.Detect(string(data)))
	}
	return enc.Encode(offers.Extract(string(data)))
}
