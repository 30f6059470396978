package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"govjobs/internal/admin"
	"govjobs/internal/config"
	"govjobs/internal/database"
	"govjobs/internal/storage"
)

type dbFlags struct {
	host, name, user, password, sslmode string
	port                                int
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags dbFlags

	root := &cobra.Command{
		Use:           "govjobs-admin",
		Short:         "招聘门户运维命令",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslmode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	root.AddCommand(
		newCreateHRCommand(&flags),
		newCloseExpiredCommand(&flags),
		newSweepOrphansCommand(&flags),
	)
	return root
}

func newCreateHRCommand(flags *dbFlags) *cobra.Command {
	var email, fullName string

	cmd := &cobra.Command{
		Use:   "create-hr",
		Short: "创建 HR 账号（首次登录需强制改密）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(*flags)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}

			profile, password, err := admin.CreateHR(cmd.Context(), db, email, fullName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建 HR 账号（首次登录需强制改密）：\n")
			fmt.Fprintf(out, "邮箱: %s\n", profile.Email)
			fmt.Fprintf(out, "初始密码: %s\n", password)
			fmt.Fprintf(out, "提示：该密码仅显示一次。\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "登录邮箱（必填）")
	cmd.Flags().StringVar(&fullName, "full-name", "", "姓名（必填）")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

func newCloseExpiredCommand(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "close-expired",
		Short: "关闭截止日期已过的岗位",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(*flags)
			if err != nil {
				return err
			}
			n, err := admin.CloseExpired(cmd.Context(), db, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %d expired job(s)\n", n)
			return nil
		},
	}
}

func newSweepOrphansCommand(flags *dbFlags) *cobra.Command {
	var (
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "删除没有数据库记录的申请材料对象",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(*flags)
			if err != nil {
				return err
			}
			// 存储配置走完整配置加载，缺 MinIO 凭据时直接失败。
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := storage.NewClient(cfg.MinIO)
			if err != nil {
				return err
			}

			res, err := admin.SweepOrphanDocuments(cmd.Context(), db, store, time.Now(), limit, dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range res.Orphans {
				fmt.Fprintln(out, key)
			}
			fmt.Fprintf(out, "scanned=%d orphans=%d deleted=%d dry_run=%t\n", res.Scanned, len(res.Orphans), res.Deleted, dryRun)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "单次最多处理的孤儿对象数，0 表示不限")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出不删除")
	return cmd
}

func openDatabase(flags dbFlags) (*gorm.DB, error) {
	cfg, err := loadDatabaseConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return db, nil
}

func loadDatabaseConfig(f dbFlags) (config.DatabaseConfig, error) {
	host := firstNonEmpty(f.host, os.Getenv("DATABASE_HOST"), "localhost")
	name := firstNonEmpty(f.name, os.Getenv("POSTGRES_DB"), os.Getenv("DB_NAME"))
	user := firstNonEmpty(f.user, os.Getenv("POSTGRES_USER"), os.Getenv("DB_USER"))
	password := firstNonEmpty(f.password, os.Getenv("POSTGRES_PASSWORD"), os.Getenv("DB_PASSWORD"))
	sslmode := firstNonEmpty(f.sslmode, os.Getenv("DATABASE_SSLMODE"), "disable")

	port := f.port
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	if name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if user == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
