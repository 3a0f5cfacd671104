package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/backup"
	"github.com/hidenkeys/aloes/config"
	"github.com/hidenkeys/aloes/docgen"
	"github.com/hidenkeys/aloes/documents"
	"github.com/hidenkeys/aloes/housing"
	"github.com/hidenkeys/aloes/jwtware"
	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/logger"
	"github.com/hidenkeys/aloes/media"
	"github.com/hidenkeys/aloes/storage"
	"github.com/hidenkeys/aloes/user"
	"github.com/hidenkeys/aloes/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func models() []any {
	all := append(housing.Models(), &lock.EditLock{}, &user.User{})
	return append(all, documents.Models...)
}

// env is what every command needs: the configuration, the logger and the database.
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func setup() (*env, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, strings.ToLower(cfg.AppName))
	if err != nil {
		return nil, err
	}
	db, err := storage.ConnectDB(cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db, models(), housing.Constraints()); err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) backupService() (*backup.Service, error) {
	sqlDB, err := e.db.DB()
	if err != nil {
		return nil, err
	}
	var copiers []backup.Copier
	if e.cfg.Backup.CopyDir != "" {
		copiers = append(copiers, &backup.DirCopier{Dir: e.cfg.Backup.CopyDir})
	}
	if e.cfg.Backup.CopyURL != "" {
		copiers = append(copiers, backup.NewHTTPCopier(e.cfg.Backup.CopyURL))
	}
	return backup.NewService(backup.NewDumper(e.cfg.Database, sqlDB), e.cfg.Backup.Dir, e.log, copiers...), nil
}

// locks uses redis when it is configured and the edit_locks table otherwise.
// The returned job purges expired table rows and is nil for redis.
func (e *env) locks(ctx context.Context) (lock.Manager, backup.Job, error) {
	if e.cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return lock.NewRedisManager(rdb, e.cfg.LockTTL), nil, nil
	}

	m := lock.NewDBManager(e.db, e.cfg.LockTTL)
	purge := func(ctx context.Context) error {
		n, err := m.Purge(ctx)
		if err == nil && n > 0 {
			e.log.Info("expired edit locks purged", zap.Int64("count", n))
		}
		return err
	}
	return m, purge, nil
}

func serve(e *env) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locks, purge, err := e.locks(ctx)
	if err != nil {
		return err
	}
	sessions, err := jwtware.New(jwtware.Config{
		KeyID:   e.cfg.Auth.KeyID,
		Secret:  []byte(e.cfg.Auth.Secret),
		JWKSURL: e.cfg.Auth.JWKSURL,
		TTL:     e.cfg.Auth.SessionTTL,
	})
	if err != nil {
		return err
	}
	defer sessions.Close()
	acl.LoginPath = e.cfg.Auth.LoginPath

	backups, err := e.backupService()
	if err != nil {
		return err
	}
	var jobs []backup.Job
	if purge != nil {
		jobs = append(jobs, purge)
	}
	scheduler, err := backup.NewScheduler(backups, e.cfg.Backup.At, e.log, jobs...)
	if err != nil {
		return err
	}
	go func() {
		if err := scheduler.Start(ctx); err != nil {
			e.log.Error("backup scheduler stopped", zap.Error(err))
		}
	}()

	files := media.New(e.cfg.MediaDir, e.cfg.MapMaxWidth)
	edit := web.NewEditor(locks)
	h := handlers{
		housing:   housing.NewHandler(e.db, edit, files, e.log),
		documents: documents.NewHandler(documents.NewStore(e.db), edit, files, e.log),
		docs:      docgen.NewHandler(docgen.NewService(housing.NewStore(e.db), docgen.NewODT(e.cfg.TemplatesDir)), e.db, e.log),
		users:     user.NewHandler(e.db, sessions, e.log),
		backup:    backup.NewHandler(backups),
	}

	app := fiber.New(fiber.Config{
		AppName:      e.cfg.AppName,
		ErrorHandler: web.ErrorHandler(e.log),
		BodyLimit:    20 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(web.RequestLogger(e.log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     e.cfg.CORSOrigins,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	app.Use(compress.New())
	app.Use(sessions.Handler())

	app.Static("/media", e.cfg.MediaDir)
	registerRoutes(app, h)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			e.log.Error("shutdown failed", zap.Error(err))
		}
	}()

	e.log.Info("listening", zap.String("addr", e.cfg.HTTPAddr))
	return app.Listen(e.cfg.HTTPAddr)
}

func withEnv(run func(cmd *cobra.Command, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync() //nolint:errcheck
		return run(cmd, e)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the daily backup",
		RunE:  withEnv(func(_ *cobra.Command, e *env) error { return serve(e) }),
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			cmd.Println("Schema up to date")
			return nil
		}),
	}
}

func createSuperuserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an administrator account",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				return errors.New("--password is required")
			}
			u, err := user.CreateSuperuser(cmd.Context(), e.db, username, email, password)
			if err != nil {
				return err
			}
			cmd.Printf("Superuser %s created (id %d)\n", u.Username, u.ID)
			return nil
		}),
	}
	cmd.Flags().String("username", "admin", "login of the account")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("password", "", "initial password")
	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the database now and copy the dump",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			svc, err := e.backupService()
			if err != nil {
				return err
			}
			path, err := svc.Run(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println("Backup written to", path)
			return nil
		}),
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report tenants and rooms whose occupancy disagrees with their leasings",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			issues, err := housing.NewOccupancy(e.db).CheckConsistency(cmd.Context())
			if err != nil {
				return err
			}
			for _, i := range issues {
				cmd.Println(i.String())
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d inconsistencies found", len(issues))
			}
			cmd.Println("Occupancy is consistent")
			return nil
		}),
	}
}

func main() {
	root := &cobra.Command{
		Use:           "aloes",
		Short:         "Residence management back office",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          withEnv(func(_ *cobra.Command, e *env) error { return serve(e) }),
	}
	root.AddCommand(serveCmd(), migrateCmd(), createSuperuserCmd(), backupCmd(), checkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
