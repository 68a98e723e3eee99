package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studio/internal/adapter/repo"
	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/runner"
)

var (
	dataDir    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "studioctl",
	Short: "Operator CLI for the media studio",
	Long: `studioctl edits provider credentials and inspects jobs directly in the
studio database. Run it on the host that owns DATA_DIR.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (defaults to DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
}

func registerCommands() {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage provider API keys"}
	apikey.AddCommand(apiKeySetCmd())

	vertex := &cobra.Command{Use: "vertex", Short: "Manage Vertex AI settings"}
	vertex.AddCommand(vertexSetCmd())

	models := &cobra.Command{Use: "models", Short: "Inspect the model catalog"}
	models.AddCommand(modelsListCmd())

	jobs := &cobra.Command{Use: "jobs", Short: "Inspect and repair jobs"}
	jobs.AddCommand(jobsListCmd(), jobsRecoverCmd())

	rootCmd.AddCommand(apikey, vertex, models, jobs)
}

type env struct {
	cfg    *infra.Config
	jobs   *repo.JobRepositorySQL
	assets *repo.AssetRepositorySQL
	links  *repo.JobAssetRepositorySQL
	creds  *credentials.Store
}

// withEnv opens the migrated database for the duration of fn.
func withEnv(ctx context.Context, fn func(ctx context.Context, e env) error) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}
	db, err := infra.OpenDB(ctx, cfg.DBPath(), 1)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := infra.Migrate(ctx, db); err != nil {
		return err
	}
	sqlRunner := infra.NewSQLRunner(db, zerolog.Nop())
	return fn(ctx, env{
		cfg:    cfg,
		jobs:   repo.NewJobRepository(sqlRunner),
		assets: repo.NewAssetRepository(sqlRunner),
		links:  repo.NewJobAssetRepository(sqlRunner),
		creds:  credentials.NewStore(repo.NewSettingsRepository(sqlRunner)),
	})
}

func apiKeySetCmd() *cobra.Command {
	var provider, key string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an API key for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := credentials.APIKeySetting(provider); !ok {
				return fmt.Errorf("unknown provider %q (want %s or %s)", provider, domain.ProviderGoogle, domain.ProviderVolcengineArk)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := e.creds.SetAPIKey(ctx, provider, key); err != nil {
					return err
				}
				fmt.Printf("api key stored for %s\n", provider)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", domain.ProviderGoogle, "provider id")
	cmd.Flags().StringVar(&key, "key", "", "api key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func vertexSetCmd() *cobra.Command {
	var vc credentials.VertexConfig
	var mode string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store Vertex AI project settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := e.creds.SetVertex(ctx, vc); err != nil {
					return err
				}
				if mode != "" {
					if err := e.creds.SetDefaultAuthMode(ctx, domain.AuthMode(mode)); err != nil {
						return err
					}
				}
				current, err := e.creds.Vertex(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(current)
				}
				fmt.Printf("project=%s location=%s bucket=%s\n", current.ProjectID, current.Location, current.GCSBucket)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&vc.ServiceAccountPath, "sa-path", "", "service account JSON path")
	cmd.Flags().StringVar(&vc.ProjectID, "project", "", "GCP project id")
	cmd.Flags().StringVar(&vc.Location, "location", "", "Vertex location")
	cmd.Flags().StringVar(&vc.GCSBucket, "bucket", "", "GCS bucket name for video extension")
	cmd.Flags().StringVar(&mode, "default-auth", "", "default auth mode (api_key or vertex)")
	return cmd
}

func modelsListCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = os.Getenv("MODEL_CATALOG_PATH")
			}
			c, err := catalog.Load(path)
			if err != nil {
				return err
			}
			models := c.List()
			if jsonOutput {
				return printJSON(models)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Provider", "Media", "Auth", "Capabilities"})
			for _, m := range models {
				auth := make([]string, 0, len(m.AuthSupport))
				for _, a := range m.AuthSupport {
					auth = append(auth, string(a))
				}
				caps := slices.Sorted(maps.Keys(m.ProviderModels))
				name := m.DisplayName
				if m.ComingSoon {
					name += " (soon)"
				}
				tw.AppendRow(table.Row{m.ModelID, name, m.ProviderID, m.MediaType, strings.Join(auth, ","), strings.Join(caps, ",")})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", "", "catalog file (defaults to MODEL_CATALOG_PATH or the built-in list)")
	return cmd
}

func jobsListCmd() *cobra.Command {
	var f domain.JobFilter
	var status, jobType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.JobStatus(status)
			f.Type = domain.JobType(jobType)
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				jobs, err := e.jobs.List(ctx, f)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Model", "Auth", "Status", "Created", "Error"})
				for _, j := range jobs {
					errMsg := ""
					if j.ErrorMessage != nil {
						errMsg = *j.ErrorMessage
					}
					tw.AppendRow(table.Row{j.ID, j.Type, j.ModelID, j.AuthMode, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04:05"), errMsg})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&jobType, "type", "", "job type filter")
	cmd.Flags().StringVar(&f.ModelID, "model", "", "model id filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	return cmd
}

// jobsRecoverCmd fails jobs left running by a dead server. Queued jobs stay
// queued; the server picks them up on its next start.
func jobsRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Fail jobs orphaned in running state",
		Long:  "Only run this while the API server is stopped; a live server still owns its running jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				r := runner.New(runner.Deps{
					Jobs:        e.jobs,
					Assets:      e.assets,
					JobAssets:   e.links,
					Credentials: e.creds,
					Logger:      zerolog.Nop(),
				}, runner.Options{Locale: e.cfg.Locale})
				failed, queued, err := r.RecoverOnStartup(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]int{"failed": failed, "queued": queued})
				}
				fmt.Printf("failed %d orphaned jobs; %d queued jobs wait for the server\n", failed, queued)
				return nil
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
