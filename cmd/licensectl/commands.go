package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ernyzasxash/clientt/internal/exporter"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

func (c *cli) connections(ctx context.Context) error {
	conns, err := c.client().Connections(ctx)
	if err != nil {
		return err
	}
	return c.printTable(c.report(exporter.Report{Connections: conns}), exporter.SheetConnections)
}

func (c *cli) failed(ctx context.Context) error {
	failed, err := c.client().FailedLogins(ctx)
	if err != nil {
		return err
	}
	return c.printTable(c.report(exporter.Report{FailedLogins: failed}), exporter.SheetFailedLogins)
}

func (c *cli) attempts(ctx context.Context, limit int) error {
	attempts, err := c.client().Attempts(ctx, limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(c.out, "no attempts logged")
		return nil
	}
	return c.printTable(c.report(exporter.Report{Attempts: attempts}), exporter.SheetAttempts)
}

func (c *cli) bans(ctx context.Context) error {
	bans, err := c.client().Bans(ctx)
	if err != nil {
		return err
	}
	return c.printTable(c.report(exporter.Report{Bans: bans}), exporter.SheetBans)
}

func (c *cli) ban(ctx context.Context, banType, value, reason string) error {
	t, err := parseBanType(banType)
	if err != nil {
		return err
	}
	result, err := c.client().Ban(ctx, v1.BanRequest{Type: t, Value: value, Reason: reason})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, result)
	return nil
}

func (c *cli) unban(ctx context.Context, banType, value string) error {
	t, err := parseBanType(banType)
	if err != nil {
		return err
	}
	result, err := c.client().Unban(ctx, t, value)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, result)
	return nil
}

func (c *cli) export(ctx context.Context, path string) error {
	client := c.client()

	conns, err := client.Connections(ctx)
	if err != nil {
		return fmt.Errorf("connections: %w", err)
	}
	failed, err := client.FailedLogins(ctx)
	if err != nil {
		return fmt.Errorf("failed logins: %w", err)
	}
	bans, err := client.Bans(ctx)
	if err != nil {
		return fmt.Errorf("bans: %w", err)
	}

	r := c.report(exporter.Report{Connections: conns, FailedLogins: failed, Bans: bans})
	if c.withLog {
		if r.Attempts, err = client.Attempts(ctx, 0); err != nil {
			return fmt.Errorf("attempts: %w", err)
		}
	}

	files, err := exporter.Export(path, r, c.logger)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(c.out, "wrote %s\n", f)
	}
	return nil
}

func (c *cli) report(r exporter.Report) exporter.Report {
	r.FullKeys = c.fullKeys
	return r
}

// printTable writes the named table of r as aligned columns
func (c *cli) printTable(r exporter.Report, name string) error {
	for _, t := range r.Tables() {
		if t.Name != name {
			continue
		}
		if len(t.Rows) == 0 {
			fmt.Fprintf(c.out, "no %s\n", strings.ToLower(t.Name))
			return nil
		}
		tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
		for _, row := range t.Rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		return tw.Flush()
	}
	return nil
}

func parseBanType(s string) (domain.BanType, error) {
	t := domain.BanType(strings.ToLower(s))
	if !t.Valid() {
		return "", usageError(fmt.Sprintf("invalid ban type %q (use ip, asn, key or device)", s))
	}
	return t, nil
}
