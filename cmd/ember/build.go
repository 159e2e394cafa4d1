package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ember/internal/codegen"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] <program.json>",
	Short: "Lower a typed program description to LLVM IR",
	Long:  "Build reads a JSON program description and prints the generated LLVM IR module.",
	Args:  cobra.ExactArgs(1),
	RunE:  buildExecution,
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "write IR to a file instead of stdout")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	inputPath := args[0]
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	prog, typesIn, syms, err := loadProgram(data)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return fmt.Errorf("load %s failed", inputPath)
	}

	ir, err := codegen.Generate(prog, typesIn, syms)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return fmt.Errorf("codegen for %s failed", inputPath)
	}

	if outputPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), ir)
		return nil
	}
	if err := os.WriteFile(outputPath, []byte(ir), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	if !quiet {
		name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %s\n", name, outputPath)
	}
	return nil
}
