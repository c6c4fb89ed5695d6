package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"

	"github.com/yairfalse/warden/pkg/resource"
)

// parameterSourceUser limits DescribeDBParameters to values changed from the
// engine default.
const parameterSourceUser = "user"

// listRDSInstances lists DB instances with the user-set parameters of their
// parameter groups as flags.
func (l *Lister) listRDSInstances(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record
	groups := make(map[string][]resource.Flag)

	paginator := rds.NewDescribeDBInstancesPaginator(c.rds, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}

		for _, instance := range output.DBInstances {
			r := l.convertRDSInstance(instance, c.region)
			for _, pg := range instance.DBParameterGroups {
				name := aws.ToString(pg.DBParameterGroupName)
				flags, ok := groups[name]
				if !ok {
					flags, err = l.parameterFlags(ctx, c, name)
					if err != nil {
						return nil, err
					}
					groups[name] = flags
				}
				r.Flags = append(r.Flags, flags...)
			}
			records = append(records, r)
		}
	}

	return records, nil
}

func (l *Lister) convertRDSInstance(instance rdstypes.DBInstance, region string) resource.Record {
	id := aws.ToString(instance.DBInstanceIdentifier)
	arn := aws.ToString(instance.DBInstanceArn)
	if arn == "" {
		arn = l.arn("rds", region, "db:"+id)
	}
	r := l.newRecord("rds", "db_instance", arn, id, region)
	for _, tag := range instance.TagList {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	r.Attrs["engine"] = aws.ToString(instance.Engine)
	r.Attrs["engine_version"] = aws.ToString(instance.EngineVersion)
	r.Attrs["instance_class"] = aws.ToString(instance.DBInstanceClass)
	r.Attrs["status"] = aws.ToString(instance.DBInstanceStatus)
	resource.FormatBool(r.Attrs, "publicly_accessible", instance.PubliclyAccessible)
	resource.FormatBool(r.Attrs, "storage_encrypted", instance.StorageEncrypted)
	resource.FormatBool(r.Attrs, "multi_az", instance.MultiAZ)
	resource.FormatBool(r.Attrs, "deletion_protection", instance.DeletionProtection)
	return r
}

func (l *Lister) parameterFlags(ctx context.Context, c *clients, group string) ([]resource.Flag, error) {
	var flags []resource.Flag
	paginator := rds.NewDescribeDBParametersPaginator(c.rds, &rds.DescribeDBParametersInput{
		DBParameterGroupName: aws.String(group),
		Source:               aws.String(parameterSourceUser),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db parameters %s: %w", group, err)
		}
		for _, p := range output.Parameters {
			if p.ParameterValue == nil {
				continue
			}
			flags = append(flags, resource.Flag{
				Name:  aws.ToString(p.ParameterName),
				Value: aws.ToString(p.ParameterValue),
			})
		}
	}
	return flags, nil
}

// listDynamoDBTables lists tables with their point-in-time recovery status.
func (l *Lister) listDynamoDBTables(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := dynamodb.NewListTablesPaginator(c.dynamodb, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		for _, name := range output.TableNames {
			r, err := l.describeDynamoDBTable(ctx, c, name)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}

	return records, nil
}

func (l *Lister) describeDynamoDBTable(ctx context.Context, c *clients, name string) (resource.Record, error) {
	table, err := c.dynamodb.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		return resource.Record{}, fmt.Errorf("describe table %s: %w", name, err)
	}

	arn := l.arn("dynamodb", c.region, "table/"+name)
	if table.Table != nil && table.Table.TableArn != nil {
		arn = aws.ToString(table.Table.TableArn)
	}
	r := l.newRecord("dynamodb", "table", arn, name, c.region)
	if table.Table != nil {
		r.Attrs["status"] = string(table.Table.TableStatus)
	}

	backups, err := c.dynamodb.DescribeContinuousBackups(ctx, &dynamodb.DescribeContinuousBackupsInput{TableName: aws.String(name)})
	if err != nil {
		return resource.Record{}, fmt.Errorf("describe continuous backups %s: %w", name, err)
	}
	if desc := backups.ContinuousBackupsDescription; desc != nil && desc.PointInTimeRecoveryDescription != nil {
		status := desc.PointInTimeRecoveryDescription.PointInTimeRecoveryStatus
		r.Attrs["pitr_enabled"] = fmt.Sprint(status == ddbtypes.PointInTimeRecoveryStatusEnabled)
	}
	return r, nil
}

// listRedshiftClusters lists provisioned Redshift clusters.
func (l *Lister) listRedshiftClusters(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := redshift.NewDescribeClustersPaginator(c.redshift, &redshift.DescribeClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe redshift clusters: %w", err)
		}
		for _, cluster := range output.Clusters {
			records = append(records, l.convertRedshiftCluster(cluster, c.region))
		}
	}

	return records, nil
}

func (l *Lister) convertRedshiftCluster(cluster redshifttypes.Cluster, region string) resource.Record {
	id := aws.ToString(cluster.ClusterIdentifier)
	r := l.newRecord("redshift", "cluster", l.arn("redshift", region, "cluster:"+id), id, region)
	for _, tag := range cluster.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	r.Attrs["status"] = aws.ToString(cluster.ClusterStatus)
	resource.FormatBool(r.Attrs, "publicly_accessible", cluster.PubliclyAccessible)
	resource.FormatBool(r.Attrs, "encrypted", cluster.Encrypted)
	return r
}

// listMemoryDBClusters lists MemoryDB clusters.
func (l *Lister) listMemoryDBClusters(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	var nextToken *string

	for {
		output, err := c.memorydb.DescribeClusters(ctx, &memorydb.DescribeClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe memorydb clusters: %w", err)
		}
		for _, cluster := range output.Clusters {
			records = append(records, l.convertMemoryDBCluster(cluster, c.region))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return records, nil
}

func (l *Lister) convertMemoryDBCluster(cluster memorydbtypes.Cluster, region string) resource.Record {
	name := aws.ToString(cluster.Name)
	arn := aws.ToString(cluster.ARN)
	if arn == "" {
		arn = l.arn("memorydb", region, "cluster/"+name)
	}
	r := l.newRecord("memorydb", "cluster", arn, name, region)
	r.Attrs["status"] = aws.ToString(cluster.Status)
	r.Attrs["engine_version"] = aws.ToString(cluster.EngineVersion)
	resource.FormatBool(r.Attrs, "tls_enabled", cluster.TLSEnabled)
	return r
}
