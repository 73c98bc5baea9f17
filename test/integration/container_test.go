package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresReadyIn  = 45 * time.Second
	containerDBName  = "clinictest"
	containerDBLogin = "clinic:clinic"
)

// startPostgresContainer launches a throwaway Postgres through the docker
// CLI. The data directory lives on tmpfs with fsync off; nothing survives
// the returned stop func.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", nil, errNoDatabase
	}

	user, pass, _ := strings.Cut(containerDBLogin, ":")
	out, err := docker(ctx, "run", "--rm", "-d",
		"--label", "clinic.integration=true",
		"--tmpfs", "/var/lib/postgresql/data",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+pass,
		"-e", "POSTGRES_DB="+containerDBName,
		postgresImage,
		"-c", "fsync=off", "-c", "synchronous_commit=off",
	)
	if err != nil {
		return "", nil, err
	}
	id := out
	stop := func() { _, _ = docker(context.Background(), "stop", "-t", "2", id) }

	// `docker port` prints e.g. 127.0.0.1:49153
	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	hostPort = strings.SplitN(hostPort, "\n", 2)[0]
	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		stop()
		return "", nil, fmt.Errorf("unexpected docker port output %q", hostPort)
	}

	url := fmt.Sprintf("postgres://%s@%s/%s?sslmode=disable", containerDBLogin, hostPort, containerDBName)
	if err := awaitPostgres(ctx, url); err != nil {
		stop()
		return "", nil, err
	}
	return url, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// awaitPostgres polls until a fresh connection can run a query.
func awaitPostgres(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, postgresReadyIn)
	defer cancel()

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, url)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", postgresReadyIn, lastErr)
		case <-tick.C:
		}
	}
}
