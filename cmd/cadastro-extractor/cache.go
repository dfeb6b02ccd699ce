// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tributech/cadastro-extractor/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the per-interval cache",
	RunE:  runCache,
}

func init() {
	cacheCmd.Flags().Bool("limpar", false, "remove all cache entries")

	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	c, err := cache.New(viper.GetString("extraction.cache_dir"))
	if err != nil {
		return err
	}

	if clear, _ := cmd.Flags().GetBool("limpar"); clear {
		n := c.Len()
		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Printf("%d entradas removidas\n", n)
		return nil
	}

	keys, err := c.Keys()
	if err != nil {
		return err
	}
	fmt.Printf("%d intervalos em cache\n", len(keys))
	for _, key := range keys {
		fmt.Println(" ", key)
	}
	return nil
}
