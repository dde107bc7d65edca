package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"harvester/example/harvester/domain/entity"
	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/exception"
)

// NewRootCommand はハーベスターの CLI を組み立てます。
func NewRootCommand(embeddedConfig, embeddedJSL []byte) *cobra.Command {
	var envFilePath string

	rootCmd := &cobra.Command{
		Use:           "harvester",
		Short:         "harvester imports Darwin Core archives into the occurrence database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultEnv := os.Getenv("ENV_FILE_PATH")
	if defaultEnv == "" {
		defaultEnv = ".env"
	}
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", defaultEnv, ".env file to load before reading the configuration")

	// withApp は初期化済みの Application を fn に渡し、終了後にリソースを解放します。
	withApp := func(cmd *cobra.Command, fn func(a *Application) error) error {
		a, err := setupApplication(cmd.Context(), envFilePath, embeddedConfig, embeddedJSL)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a)
	}

	rootCmd.AddCommand(
		newImportCommand(withApp),
		newMoveCommand(withApp),
		newUniqueValuesCommand(withApp),
		newRunCommand(withApp),
		newResourceCommand(withApp),
		newLogCommand(withApp),
	)
	return rootCmd
}

type appRunner func(cmd *cobra.Command, fn func(a *Application) error) error

func newImportCommand(withApp appRunner) *cobra.Command {
	var (
		resourceID int
		dwcaPath   string
		archiveURL string
		dataset    string
	)
	command := &cobra.Command{
		Use:   "import",
		Short: "import a DwC-A into the buffer schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := map[core.SharedParameter]any{}
			switch {
			case resourceID > 0:
				params[core.ParamResourceID] = resourceID
			case archiveURL != "":
				params[core.ParamArchiveURL] = archiveURL
			case dwcaPath != "":
				params[core.ParamDwcaPath] = dwcaPath
			default:
				return exception.NewConfigurationError("app", "--resource-id, --archive-url, --dwca-path のいずれかを指定してください")
			}
			if dataset != "" {
				params[core.ParamDatasetShortname] = dataset
			}
			return withApp(cmd, func(a *Application) error {
				return a.runJob(cmd.Context(), JobImportDwca, params)
			})
		},
	}
	command.Flags().IntVar(&resourceID, "resource-id", 0, "resource to import (from the resource management table)")
	command.Flags().StringVar(&archiveURL, "archive-url", "", "URL of the DwC-A to download")
	command.Flags().StringVar(&dwcaPath, "dwca-path", "", "local DwC-A zip, extracted directory or core file")
	command.Flags().StringVar(&dataset, "dataset", "", "dataset short name (defaults to the resource source file id)")
	return command
}

func newMoveCommand(withApp appRunner) *cobra.Command {
	var dataset string
	command := &cobra.Command{
		Use:   "move",
		Short: "move a buffered dataset to the public schema and recompute unique values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *Application) error {
				return a.runJob(cmd.Context(), JobMoveToPublicSchema, map[core.SharedParameter]any{
					core.ParamDatasetShortname: dataset,
				})
			})
		},
	}
	command.Flags().StringVar(&dataset, "dataset", "", "dataset short name")
	_ = command.MarkFlagRequired("dataset")
	return command
}

func newUniqueValuesCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "unique-values",
		Short: "recompute the unique values table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *Application) error {
				return a.runJob(cmd.Context(), JobComputeUniqueValues, nil)
			})
		},
	}
}

func newRunCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "run [job]",
		Short: "run a job kind by name (defaults to batch.job_name)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *Application) error {
				jobKind := a.Config.Batch.JobName
				if len(args) == 1 {
					jobKind = args[0]
				}
				if jobKind == "" {
					return exception.NewConfigurationError("app", "設定ファイルにジョブ名が指定されていません")
				}
				return a.runJob(cmd.Context(), jobKind, nil)
			})
		},
	}
}

func newResourceCommand(withApp appRunner) *cobra.Command {
	command := &cobra.Command{
		Use:   "resource",
		Short: "manage harvested resources",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "list resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *Application) error {
				resources, err := a.Resources.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSOURCE FILE ID\tARCHIVE URL")
				for _, r := range resources {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.SourceFileID, r.ArchiveURL)
				}
				return w.Flush()
			})
		},
	}

	var res entity.Resource
	save := &cobra.Command{
		Use:   "save",
		Short: "add a resource, or update it when --id is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *Application) error {
				saved, err := a.Resources.Save(cmd.Context(), res)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved resource %d\n", saved.ID)
				return nil
			})
		},
	}
	save.Flags().Int64Var(&res.ID, "id", 0, "resource id to update")
	save.Flags().StringVar(&res.Name, "name", "", "resource name")
	save.Flags().StringVar(&res.ArchiveURL, "archive-url", "", "DwC-A URL")
	save.Flags().StringVar(&res.SourceFileID, "source-file-id", "", "source file id (dataset short name)")

	command.AddCommand(list, save)
	return command
}

func newLogCommand(withApp appRunner) *cobra.Command {
	var limit int
	command := &cobra.Command{
		Use:   "log",
		Short: "show recent import log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *Application) error {
				entries, err := a.ImportLog.FindRecent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "END\tJOB\tDATASET\tSTATUS\tRECORDS\tERROR")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						e.EndTime.Format("2006-01-02 15:04:05"), e.JobName, e.Dataset, e.Status, e.RecordCount, e.ErrorMessage)
				}
				return w.Flush()
			})
		},
	}
	command.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return command
}
