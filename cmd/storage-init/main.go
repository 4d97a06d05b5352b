// storage-init provisions the document store: the Azure tables and activity
// queue, or the SQLite schema. It can also seed a first workspace member so a
// fresh environment is usable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"workboard/config"
	"workboard/domain"
	"workboard/storage"
	"workboard/storage/sqlite"
)

type options struct {
	debug      bool
	driver     string
	connStr    string
	tasks      string
	members    string
	projects   string
	queue      string
	sqlitePath string

	seedWorkspace string
	seedUser      string
	seedRole      string
}

type memberWriter interface {
	UpsertMember(ctx context.Context, m domain.Member) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	var o options
	app := kingpin.New("storage-init", "Provision workboard storage.")
	app.DefaultEnvars()
	app.Flag("debug", "Enable debug logging.").Envar("DEBUG").BoolVar(&o.debug)
	app.Flag("driver", "Document store driver.").Envar("STORE_DRIVER").Default(config.DriverTables).EnumVar(&o.driver, config.DriverTables, config.DriverSQLite)
	app.Flag("connection-string", "Azure storage connection string.").Envar("STORAGE_CONNECTION_STRING").StringVar(&o.connStr)
	app.Flag("tasks-table", "Tasks table name.").Envar("TASKS_TABLE").Default("Tasks").StringVar(&o.tasks)
	app.Flag("members-table", "Members table name.").Envar("MEMBERS_TABLE").Default("Members").StringVar(&o.members)
	app.Flag("projects-table", "Projects table name.").Envar("PROJECTS_TABLE").Default("Projects").StringVar(&o.projects)
	app.Flag("activity-queue", "Task activity queue name.").Envar("ACTIVITY_QUEUE").Default("task-activity").StringVar(&o.queue)
	app.Flag("sqlite-path", "SQLite database file.").Envar("SQLITE_PATH").Default("workboard.db").StringVar(&o.sqlitePath)
	app.Flag("seed-workspace", "Workspace of the member to seed.").StringVar(&o.seedWorkspace)
	app.Flag("seed-user", "User id (token subject) of the member to seed.").StringVar(&o.seedUser)
	app.Flag("seed-role", "Role of the seeded member.").Default(string(domain.RoleAdmin)).EnumVar(&o.seedRole, string(domain.RoleAdmin), string(domain.RoleMember))

	if _, err := app.Parse(args[1:]); err != nil {
		return err
	}
	if o.debug {
		log.SetLevel(log.DebugLevel)
	}
	if (o.seedWorkspace == "") != (o.seedUser == "") {
		return fmt.Errorf("--seed-workspace and --seed-user must be set together")
	}

	log.WithField("driver", o.driver).Info("storage init starting")
	writer, closeStore, err := provision(ctx, o)
	if err != nil {
		return err
	}
	defer closeStore()

	if o.seedWorkspace != "" {
		m := domain.Member{ID: uuid.NewString(), WorkspaceID: o.seedWorkspace, UserID: o.seedUser, Role: domain.MemberRole(o.seedRole)}
		if err := writer.UpsertMember(ctx, m); err != nil {
			return fmt.Errorf("seed member: %w", err)
		}
		log.WithFields(log.Fields{"workspace": m.WorkspaceID, "user": m.UserID}).Info("member seeded")
	}
	log.Info("storage init complete")
	return nil
}

func provision(ctx context.Context, o options) (memberWriter, func(), error) {
	if o.driver == config.DriverSQLite {
		// opening the repository applies pending migrations
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: o.sqlitePath})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	if o.connStr == "" {
		return nil, nil, fmt.Errorf("missing STORAGE_CONNECTION_STRING")
	}
	if err := storage.CreateTables(ctx, o.connStr, o.tasks, o.members, o.projects); err != nil {
		return nil, nil, fmt.Errorf("create tables: %w", err)
	}
	if err := storage.CreateQueues(ctx, o.connStr, o.queue); err != nil {
		return nil, nil, fmt.Errorf("create queues: %w", err)
	}
	store, err := storage.New(o.connStr, storage.Tables{Tasks: o.tasks, Members: o.members, Projects: o.projects})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
