package main

import (
	"context"
	"net/mail"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core/academy"
)

func (cli *commandLine) listAcademies(ctx context.Context, query academy.TableQuery) error {
	token, err := cli.requireSuperAdmin()
	if err != nil {
		return err
	}
	academies, err := cli.academies.ListAcademies(ctx, token)
	if err != nil {
		return cli.forgetRejected(errors.Wrap(err, "listing academies"))
	}

	rows := academy.Table(academies, query, academy.NowFunc())
	if len(rows) == 0 {
		cli.printf("No academies\n")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = w.Write([]byte("NAME\tOWNER\tADMIN EMAIL\tSTUDENTS\tEXPIRES\tSTATUS\n"))
	for _, r := range rows {
		expires, status := r.SubscriptionExpiryDate.String(), string(r.Subscription.Status)
		if expires == "" {
			expires = "-"
		}
		switch r.Subscription.Status {
		case academy.StatusExpiringSoon:
			status += " (" + plural(r.Subscription.DaysRemaining, "day") + ")"
		case academy.StatusExpired:
			status += " (" + plural(-r.Subscription.DaysRemaining, "day") + " ago)"
		}
		_, _ = w.Write([]byte(r.Name + "\t" + r.OwnerName + "\t" + r.AdminEmail + "\t" +
			limit(r.StudentLimit) + "\t" + expires + "\t" + status + "\n"))
	}
	return w.Flush()
}

func (cli *commandLine) notifyExpiring(ctx context.Context) error {
	token, err := cli.requireSuperAdmin()
	if err != nil {
		return err
	}
	usr := cli.store.State().User
	report, err := cli.notifier.Notify(ctx, token, mail.Address{Name: usr.Name, Address: usr.Email})
	if err != nil {
		return cli.forgetRejected(err)
	}
	cli.printf("notified: %d, skipped: %d, missing expiry date: %d\n", report.Notified, report.Skipped, report.Unknown)
	return nil
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func limit(n int) string {
	if n <= 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
