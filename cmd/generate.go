package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/security"
	"github.com/toolboxpm/toolbox-vault/internal/strength"
)

var (
	genLength      int
	genNoLower     bool
	genNoUpper     bool
	genNoDigits    bool
	genNoSymbols   bool
	genAmbiguous   bool
	genNoRequire   bool
	genNoClipboard bool
)

var generateCmd = &cobra.Command{
	Use:     "generate",
	GroupID: "security",
	Aliases: []string{"gen"},
	Short:   "Generate a random password",
	Long: `Generate creates a password from cryptographic randomness. By default
every selected character class is guaranteed to appear and look-alike
characters (O0oIl1) are excluded.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().IntVarP(&genLength, "length", "l", 16, "password length")
	generateCmd.Flags().BoolVar(&genNoLower, "no-lower", false, "exclude lowercase letters")
	generateCmd.Flags().BoolVar(&genNoUpper, "no-upper", false, "exclude uppercase letters")
	generateCmd.Flags().BoolVar(&genNoDigits, "no-digits", false, "exclude digits")
	generateCmd.Flags().BoolVar(&genNoSymbols, "no-symbols", false, "exclude symbols")
	generateCmd.Flags().BoolVar(&genAmbiguous, "ambiguous", false, "allow ambiguous characters")
	generateCmd.Flags().BoolVar(&genNoRequire, "no-require-each", false, "do not force one char per selected class")
	generateCmd.Flags().BoolVar(&genNoClipboard, "no-clipboard", false, "do not copy to clipboard")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts := security.GeneratorOptions{
		Length:                  genLength,
		UseLower:                !genNoLower,
		UseUpper:                !genNoUpper,
		UseDigits:               !genNoDigits,
		UseSymbols:              !genNoSymbols,
		ExcludeAmbiguous:        !genAmbiguous,
		RequireEachSelectedType: !genNoRequire,
	}

	password, err := security.Generate(opts)
	if err != nil {
		return err
	}

	fmt.Println(password)

	result := strength.Evaluate(password)
	fmt.Printf("Strength: %d/100 (%s)\n", result.Score, result.Label)

	if !genNoClipboard {
		if err := copyToClipboard(password); err != nil {
			warnColor.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		} else {
			fmt.Println("Copied to clipboard.")
		}
	}
	return nil
}
