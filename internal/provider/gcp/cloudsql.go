package gcp

import (
	"context"
	"fmt"
	"strconv"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"github.com/yairfalse/warden/pkg/resource"
)

// listSQLInstances lists Cloud SQL instances with their database flags.
func (l *Lister) listSQLInstances(ctx context.Context) ([]resource.Record, error) {
	var records []resource.Record
	token := ""

	for {
		output, err := l.sql.ListInstances(ctx, l.project, token)
		if err != nil {
			return nil, fmt.Errorf("list sql instances: %w", err)
		}
		for _, instance := range output.Items {
			if instance != nil {
				records = append(records, l.convertSQLInstance(instance))
			}
		}

		if output.NextPageToken == "" {
			break
		}
		token = output.NextPageToken
	}

	return records, nil
}

func (l *Lister) convertSQLInstance(instance *sqladmin.DatabaseInstance) resource.Record {
	id := instance.SelfLink
	if id == "" {
		id = fmt.Sprintf("projects/%s/instances/%s", l.project, instance.Name)
	}
	r := l.newRecord("cloudsql", "instance", id, instance.Name, instance.Region)
	r.Attrs["database_version"] = instance.DatabaseVersion
	r.Attrs["state"] = instance.State

	settings := instance.Settings
	if settings == nil {
		return r
	}
	for k, v := range settings.UserLabels {
		r.Labels[k] = v
	}
	for _, flag := range settings.DatabaseFlags {
		if flag != nil {
			r.Flags = append(r.Flags, resource.Flag{Name: flag.Name, Value: flag.Value})
		}
	}
	if ip := settings.IpConfiguration; ip != nil {
		r.Attrs["require_ssl"] = strconv.FormatBool(ip.RequireSsl)
		r.Attrs["ipv4_enabled"] = strconv.FormatBool(ip.Ipv4Enabled)
		if ip.SslMode != "" {
			r.Attrs["ssl_mode"] = ip.SslMode
		}
	}
	return r
}
