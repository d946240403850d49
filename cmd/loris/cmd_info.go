package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/zboralski/loris/internal/stubs"
	"github.com/zboralski/loris/internal/ui/colorize"
	"github.com/zboralski/loris/internal/wasm"
)

// infoCmd inspects a module without running it.
var infoCmd = &cobra.Command{
	Use:   "info <module.wasm>",
	Short: "Show module information",
	Args:  cobra.ExactArgs(1),
	RunE:  showInfo,
}

func showInfo(cmd *cobra.Command, args []string) error {
	modulePath := args[0]

	data, err := wasm.Load(modulePath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCustomSections(true))
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("compile module: %w", err)
	}
	info := wasm.Inspect(compiled, modulePath, int64(len(data)))

	fmt.Printf("Module:  %s\n", filepath.Base(modulePath))
	fmt.Printf("Size:    %s\n", humanize.Bytes(uint64(info.Size)))
	if info.Name != "" {
		fmt.Printf("Name:    %s\n", info.Name)
	}
	if line := producerLine(info); line != "" {
		fmt.Printf("Built:   %s\n", line)
	}
	for _, m := range info.Memories {
		kind := "local"
		if m.Imported {
			kind = "imported " + m.Module + "." + m.Name
		}
		if m.HasMax {
			fmt.Printf("Memory:  %s, %d-%d pages\n", kind, m.MinPages, m.MaxPages)
		} else {
			fmt.Printf("Memory:  %s, %d+ pages\n", kind, m.MinPages)
		}
	}
	fmt.Printf("Imports: %d (%d env)\n", len(info.Imports), len(info.EnvImports()))
	fmt.Printf("Exports: %d\n", len(info.Exports))

	if entry := info.FindEntryPoint(""); entry != "" {
		fmt.Printf("Entry:   %s\n", entry)
	} else {
		fmt.Printf("Entry:   %s\n", colorize.Error("none found"))
	}

	if info.Threaded() {
		hits := wasm.NewThreadScan().Scan(info.Imports)
		fmt.Printf("\n%s\n", colorize.Error("Threaded build: this module expects real threads."))
		for _, name := range hits {
			fmt.Printf("  %s\n", name)
		}
	}

	if len(info.Features) > 0 {
		fmt.Println("\nTarget features:")
		for _, f := range info.Features {
			fmt.Printf("  %c%s\n", f.Prefix, f.Name)
		}
	}

	envImports := info.EnvImports()
	if len(envImports) == 0 {
		return nil
	}

	fmt.Println("\nEnv imports:")
	sort.Slice(envImports, func(i, j int) bool { return envImports[i].Name < envImports[j].Name })
	for _, imp := range envImports {
		if def := stubs.DefaultRegistry.Lookup(imp.Name); def != nil {
			fmt.Printf("  %-36s %s\n", imp.Name, colorize.Detail("stub #"+def.Category))
		} else {
			fmt.Printf("  %-36s %s\n", imp.Name, colorize.Detail("fallback"))
		}
	}

	return nil
}
