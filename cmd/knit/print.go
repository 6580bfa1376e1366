package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

// printCmd implements the original's `Print { objtype, id }`: dump an
// object's canonical attribute-encoded serialization to stdout.
func printCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print <job|production|invocation> <id>",
		Short: "Dump an object's attribute-encoded form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			data, err := printObject(s, args[0], args[1])
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			os.Stdout.Write(data)
			return nil
		},
	}
}

func printObject(s store.Store, objtype, idStr string) ([]byte, error) {
	switch objtype {
	case "job":
		id, err := objid.Parse[model.Job](idStr)
		if err != nil {
			return nil, err
		}
		obj, err := store.ReadJob(s, id)
		if err != nil {
			return nil, err
		}
		return obj.Encode()
	case "production":
		id, err := objid.Parse[model.Production](idStr)
		if err != nil {
			return nil, err
		}
		obj, err := store.ReadProduction(s, id)
		if err != nil {
			return nil, err
		}
		return obj.Encode()
	case "invocation":
		id, err := objid.Parse[model.Invocation](idStr)
		if err != nil {
			return nil, err
		}
		obj, err := store.ReadInvocation(s, id)
		if err != nil {
			return nil, err
		}
		return obj.Encode()
	default:
		return nil, fmt.Errorf("unknown object type %q", objtype)
	}
}
