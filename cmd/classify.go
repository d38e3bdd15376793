package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/newhook/necropolis/internal/classifier"
	"github.com/spf13/cobra"
)

var (
	flagClassifyLogFile    string
	flagClassifySignatures string
	flagClassifyContext    map[string]string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a log against the error signatures",
	Long: `Classify a log line by line against the ordered error signatures and print the
classification result as JSON. Reads stdin when --log-file is not given.`,
	Args: cobra.NoArgs,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&flagClassifyLogFile, "log-file", "", "log to classify (default: stdin)")
	classifyCmd.Flags().StringVar(&flagClassifySignatures, "signatures", "", "YAML signature pack appended to the built-in signatures")
	classifyCmd.Flags().StringToStringVar(&flagClassifyContext, "context", nil, "context attached to the result (key=value)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	pack := getConfig().Classifier.SignaturesFile
	if flagClassifySignatures != "" {
		pack = flagClassifySignatures
	}

	var extra []classifier.SignatureSpec
	if pack != "" {
		specs, err := classifier.LoadSignaturePack(pack)
		if err != nil {
			return err
		}
		extra = specs
	}

	c, err := classifier.New(extra...)
	if err != nil {
		return err
	}

	var data []byte
	if flagClassifyLogFile != "" {
		data, err = os.ReadFile(flagClassifyLogFile)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}

	var ctx map[string]any
	if len(flagClassifyContext) > 0 {
		ctx = make(map[string]any, len(flagClassifyContext))
		for k, v := range flagClassifyContext {
			ctx[k] = v
		}
	}

	result := c.ClassifyLogContent(string(data), ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
