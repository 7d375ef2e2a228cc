package config

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/omeid/uconfig/flat"
)

const (
	TagEnv  = "env"
	TagFlag = "flag"
	TagDesc = "desc"
)

var (
	ErrEnvLoad          = errors.New("cannot load .env file")
	ErrFlagParse        = errors.New("cannot parse flag")
	ErrConfigInvalid    = errors.New("invalid config struct")
	ErrConfigValidation = errors.New("config validation error")
)

type DefaultsSetter interface {
	SetDefaults()
}

// LoadConfig fills cfg from the .env file, the environment and the command line flags,
// in increasing priority, then applies defaults and validates the result
func LoadConfig(cfg DefaultsSetter, osArgs *[]string, envFiles ...string) error {
	err := godotenv.Load(envFiles...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return lib.WrapError(ErrEnvLoad, err)
	}

	// recursively iterates over each field of the nested struct
	fields, err := flat.View(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigInvalid, err)
	}

	flagset := flag.NewFlagSet("", flag.ContinueOnError)

	for _, field := range fields {
		envName, ok := field.Tag(TagEnv)
		if !ok {
			continue
		}

		envValue, ok := os.LookupEnv(envName)
		if ok {
			_ = field.Set(envValue)
		}

		flagName, ok := field.Tag(TagFlag)
		if !ok {
			continue
		}

		flagDesc, _ := field.Tag(TagDesc)

		// writes flag value to variable
		flagset.Var(field, flagName, flagDesc)
	}

	var args []string
	if osArgs != nil {
		args = *osArgs
	} else {
		args = os.Args
	}

	// flags override .env variables
	err = flagset.Parse(args[1:])
	if err != nil {
		return lib.WrapError(ErrFlagParse, err)
	}

	cfg.SetDefaults()

	err = newValidator().Struct(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigValidation, err)
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d >= 0
	})
	return v
}
