package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cbums",
	Short: "CBUMS — Coin-Based User Management System",
	Long:  "CBUMS is a role-based backend for managing companies, their employees, coin allocations, logistics trips with verifiable seals, and a full activity audit trail.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/cbums.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
