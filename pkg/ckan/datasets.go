package ckan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

func (c *Client) ShowDataset(ctx context.Context, name string) (*Dataset, error) {
	ds := &Dataset{}

	err := c.Action(ctx, TypePackage, ActionShow, map[string]string{"id": name}, ds)
	if err != nil {
		return nil, err
	}

	return ds, nil
}

func (c *Client) CreateDataset(ctx context.Context, spec DatasetSpec) (*Dataset, error) {
	ds := &Dataset{}

	err := c.Action(ctx, TypePackage, ActionCreate, spec, ds)
	if err != nil {
		return nil, err
	}

	return ds, nil
}

// EnsureDataset returns the named dataset, creating it when the catalog does
// not know it yet. A catalog that refuses the creation yields a nil dataset
// and no error so that the caller can skip it.
func (c *Client) EnsureDataset(ctx context.Context, spec DatasetSpec) (*Dataset, error) {
	logger := logging.GetFromContext(ctx).With("dataset", spec.Name)

	ds, err := c.ShowDataset(ctx, spec.Name)
	if err == nil {
		return ds, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	logger.Info("creating dataset")

	ds, err = c.CreateDataset(ctx, spec)
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			logger.Error("catalog api key is invalid, please read the docs and change it", "err", err.Error())
			return nil, nil
		}
		return nil, err
	}

	return ds, nil
}

// EnsureResource looks the resource up by name among the resources of the
// dataset and creates it if it is missing. Resources that cannot be created
// are logged and reported as nil.
func (c *Client) EnsureResource(ctx context.Context, name string, dataset *Dataset, format, location string) (*Resource, error) {
	if dataset == nil {
		return nil, fmt.Errorf("no dataset for resource %s (%w)", name, ErrInternal)
	}

	logger := logging.GetFromContext(ctx).With("dataset", dataset.Name, "resource", name)

	current, err := c.ShowDataset(ctx, dataset.Name)
	if err != nil {
		return nil, err
	}
	*dataset = *current

	if r, ok := dataset.Resource(name); ok {
		return r, nil
	}

	if format == "" {
		format = "csv"
	}

	if location == "" {
		location = c.fileURL(dataset.Name, name, format)
	}

	logger.Info("creating resource")

	r := &Resource{}
	err = c.Action(ctx, TypeResource, ActionCreate, map[string]any{
		"package_id": dataset.ID,
		"name":       name,
		"url":        location,
		"format":     format,
		"force":      true,
	}, r)
	if err != nil {
		logger.Error("failed to create resource", "err", err.Error())
		return nil, nil
	}

	dataset.Resources = append(dataset.Resources, *r)

	return r, nil
}

func (c *Client) fileURL(datasetName, resourceName, format string) string {
	extension := "." + strings.ToLower(strings.TrimPrefix(format, "."))
	return "file://" + c.stagingDir + "/" + datasetName + "/" + resourceName + extension
}
