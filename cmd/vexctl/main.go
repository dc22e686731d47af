// vexctl is a small command-line client for a VexDB server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	vexdb "github.com/vexdb/vexdb-go"
	"github.com/vexdb/vexdb-go/protocol"
)

var (
	flagAddr     string
	flagUser     string
	flagPassword string
	flagSpace    string
	flagTimeout  time.Duration
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "vexctl",
		Short:         "Command-line client for VexDB",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagAddr, "addr", "localhost:7801", "server address (host:port)")
	root.PersistentFlags().StringVar(&flagUser, "user", "admin", "username")
	root.PersistentFlags().StringVar(&flagPassword, "password", "", "password")
	root.PersistentFlags().StringVar(&flagSpace, "space", "", "space to operate in")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "per-operation timeout")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log connection events")

	root.AddCommand(
		pingCmd(),
		putCmd(),
		getCmd(),
		delCmd(),
		spaceCmd(),
		vectorCmd(),
		userCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vexctl:", err)
		os.Exit(1)
	}
}

// withClient connects, authenticates, runs fn and closes the connection.
func withClient(fn func(ctx context.Context, client *vexdb.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	opts := []vexdb.DialOption{
		vexdb.WithConnectTimeout(flagTimeout),
		vexdb.WithReadTimeout(flagTimeout),
	}
	if flagVerbose {
		opts = append(opts, vexdb.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	client, err := vexdb.Connect(ctx, flagAddr, flagUser, flagPassword, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	if flagSpace != "" {
		if err := client.UseSpace(ctx, flagSpace); err != nil {
			return err
		}
	}
	return fn(ctx, client)
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check server liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err := withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.Ping(ctx)
			})
			if err != nil {
				return err
			}
			fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.Put(ctx, args[0], parseValue(args[1]))
			})
		},
	}
}

// parseValue guesses the value kind from the literal: numbers and booleans
// are sent typed, everything else as a string.
func parseValue(literal string) protocol.Value {
	if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return protocol.Int(i)
	}
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return protocol.Float(f)
	}
	if b, err := strconv.ParseBool(literal); err == nil {
		return protocol.Bool(b)
	}
	return protocol.String(literal)
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Fetch a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				value, found, err := client.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key not found: %s", args[0])
				}
				data, err := value.MarshalJSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			})
		},
	}
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del KEY",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.Delete(ctx, args[0])
			})
		},
	}
}

func spaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Manage spaces",
	}

	var dimension int
	var indexType, metric string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.CreateSpace(ctx, args[0], vexdb.CreateSpaceOptions{
					Dimension: dimension,
					IndexType: indexType,
					Metric:    metric,
				})
			})
		},
	}
	create.Flags().IntVar(&dimension, "dimension", 0, "vector dimension")
	create.Flags().StringVar(&indexType, "index", vexdb.DefaultIndexType, "index type")
	create.Flags().StringVar(&metric, "metric", vexdb.DefaultMetric, "distance metric")

	drop := &cobra.Command{
		Use:   "drop NAME",
		Short: "Drop a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.DropSpace(ctx, args[0])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List spaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				names, err := client.ListSpaces(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}

	describe := &cobra.Command{
		Use:   "describe NAME",
		Short: "Show a space's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				desc, err := client.DescribeSpace(ctx, args[0])
				if err != nil {
					return err
				}
				for field, value := range desc {
					data, err := value.MarshalJSON()
					if err != nil {
						return err
					}
					fmt.Printf("%s: %s\n", field, data)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, drop, list, describe)
	return cmd
}

func vectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Insert and search vectors",
	}

	insert := &cobra.Command{
		Use:   "insert ID V1,V2,...",
		Short: "Insert a vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			vector, err := parseVector(args[1])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.InsertVector(ctx, id, vector)
			})
		},
	}

	var k int
	search := &cobra.Command{
		Use:   "search V1,V2,...",
		Short: "Find the nearest vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(args[0])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				results, err := client.SearchTopK(ctx, vector, vexdb.SearchOptions{K: k})
				if err != nil {
					return err
				}
				for _, r := range results {
					fmt.Printf("%d\t%g\n", r.ID, r.Distance)
				}
				return nil
			})
		},
	}
	search.Flags().IntVar(&k, "k", vexdb.DefaultSearchK, "number of results")

	var radius float64
	rangeSearch := &cobra.Command{
		Use:   "range V1,V2,...",
		Short: "Find all vectors within a radius",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(args[0])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				results, err := client.RangeSearch(ctx, vector, radius)
				if err != nil {
					return err
				}
				for _, r := range results {
					fmt.Printf("%d\t%g\n", r.ID, r.Distance)
				}
				return nil
			})
		},
	}
	rangeSearch.Flags().Float64Var(&radius, "radius", 1, "search radius")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Fetch a stored vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				vector, found, err := client.GetVector(ctx, id)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("vector not found: %d", id)
				}
				parts := make([]string, len(vector))
				for i, v := range vector {
					parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
				}
				fmt.Println(strings.Join(parts, ","))
				return nil
			})
		},
	}

	cmd.AddCommand(insert, search, rangeSearch, get)
	return cmd
}

func parseVector(literal string) ([]float64, error) {
	parts := strings.Split(literal, ",")
	vector := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vector[i] = v
	}
	return vector, nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var role string
	create := &cobra.Command{
		Use:   "create NAME PASSWORD",
		Short: "Create a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.CreateUser(ctx, args[0], args[1], role)
			})
		},
	}
	create.Flags().StringVar(&role, "role", "reader", "role granted to the new user")

	drop := &cobra.Command{
		Use:   "drop NAME",
		Short: "Drop a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.DropUser(ctx, args[0])
			})
		},
	}

	passwd := &cobra.Command{
		Use:   "passwd NAME PASSWORD",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				return client.ChangePassword(ctx, args[0], args[1])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users and roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client *vexdb.Client) error {
				users, err := client.ListUsers(ctx)
				if err != nil {
					return err
				}
				for name, role := range users {
					fmt.Printf("%s\t%s\n", name, role)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, drop, passwd, list)
	return cmd
}

// statsCmd exercises the pool against the server and prints its counters,
// mainly as a connectivity smoke test.
func statsCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run concurrent pings through a pool and print pool stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
			defer cancel()

			pool, err := vexdb.NewPool(ctx, vexdb.PoolConfig{
				Addr:           flagAddr,
				Username:       flagUser,
				Password:       flagPassword,
				MinSize:        1,
				MaxSize:        4,
				AcquireTimeout: flagTimeout,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			errCh := make(chan error, workers)
			for i := 0; i < workers; i++ {
				go func() {
					errCh <- pool.With(ctx, func(conn *vexdb.Connection) error {
						return conn.Ping(ctx)
					})
				}()
			}
			for i := 0; i < workers; i++ {
				if err := <-errCh; err != nil {
					return err
				}
			}

			stats := pool.Stats()
			fmt.Printf("pool size:    %d\n", stats.PoolSize)
			fmt.Printf("idle:         %d\n", stats.IdleConns)
			fmt.Printf("active:       %d\n", stats.ActiveConns)
			fmt.Printf("created:      %d\n", stats.CreatedConns)
			fmt.Printf("destroyed:    %d\n", stats.DestroyedConns)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent pings to run")
	return cmd
}
