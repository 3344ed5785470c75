package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFile is loaded from the working directory before flags are parsed.
const DotEnvFile = ".env"

// LoadDotEnv loads environment variables from a .env file in the working
// directory. Variables already set in the environment win. If the file does
// not exist, the function returns nil without an error.
func LoadDotEnv() error {
	if _, err := os.Stat(DotEnvFile); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check if %s exists: %w", DotEnvFile, err)
	}

	if err := godotenv.Load(DotEnvFile); err != nil {
		return fmt.Errorf("could not load %s: %w", DotEnvFile, err)
	}

	return nil
}
