package storage

import (
	"context"

	"company-tasks-api/domain"
)

// ListCompanies returns the user's companies in the order the store returns
// them. Malformed documents are skipped.
func (c *Client) ListCompanies(ctx context.Context, userID string) ([]domain.Company, error) {
	docs, err := c.listDocuments(ctx, "list companies", c.companiesPath(userID))
	if err != nil {
		return nil, err
	}
	companies := make([]domain.Company, 0, len(docs))
	for _, doc := range docs {
		company, ok := decodeCompany(doc)
		if !ok {
			c.logger.WithField("user_id", userID).Debug("skipping malformed company document")
			continue
		}
		companies = append(companies, company)
	}
	return companies, nil
}

// GetCompany returns nil when the company does not exist or is not visible.
func (c *Client) GetCompany(ctx context.Context, userID, companyID string) (*domain.Company, error) {
	doc, err := c.getDocument(ctx, "get company", c.companyPath(userID, companyID))
	if err != nil || doc == nil {
		return nil, err
	}
	company, ok := decodeCompany(*doc)
	if !ok {
		return nil, nil
	}
	return &company, nil
}

// UpsertCompany creates or fully replaces the company keyed by company.ID.
func (c *Client) UpsertCompany(ctx context.Context, userID string, company domain.Company) error {
	if company.ID == "" {
		return domain.E(domain.KindValidation, "company id is required")
	}
	return c.patchDocument(ctx, "upsert company", c.companyPath(userID, company.ID), encodeCompany(company))
}

func (c *Client) DeleteCompany(ctx context.Context, userID, companyID string) error {
	return c.deleteDocument(ctx, "delete company", c.companyPath(userID, companyID))
}
