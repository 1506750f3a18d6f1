package catalog

import (
	"errors"
	"fmt"

	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// CurrentInvoiceSuffix names the invoice product holding the cost total.
const CurrentInvoiceSuffix = "current invoice"

// accountProduct builds a product that belongs to the customer pseudo plan.
func (r *run) accountProduct(identifier, name, key string, t types.ProductType, d types.DescriptionKey, state any, attributes map[string]any) *types.Product {
	return &types.Product{
		Identifier:     identifier,
		Key:            types.FormatKey(key),
		Type:           t,
		DescriptionKey: d,
		PlanIdentifier: r.customerID(),
		PlanLabel:      customerPlanLabel,
		Name:           name,
		State:          state,
		Attributes:     attributes,
		Extra:          true,
	}
}

func (r *run) userDetailsProduct() *types.Product {
	return r.accountProduct("user details", "user details", r.customerID()+" user details",
		types.ProductTypeUser, types.DescriptionUser, r.user.Get("first_name").Raw(), r.user.Map())
}

// customerExtras returns the invoice, user, customer and mailbox products.
func (r *run) customerExtras() ([]*types.Product, error) {
	customerID := r.customerID()
	out := []*types.Product{
		r.accountProduct(
			types.ExtraIdentifier(customerID, CurrentInvoiceSuffix), CurrentInvoiceSuffix, customerID+" "+CurrentInvoiceSuffix,
			types.ProductTypeInvoice, types.DescriptionEuro, r.cost.Round(2).InexactFloat64(), nil,
		),
		r.userDetailsProduct(),
	}

	customer, err := r.Source.Customer(r.ctx)
	if err != nil && !errors.Is(err, types.ErrNoData) {
		return nil, fmt.Errorf("failed to fetch customer: %w", err)
	}
	out = append(out, r.accountProduct("customer", "customer", customerID+" customer",
		types.ProductTypeCustomer, types.DescriptionCustomer, customer.Get("accountNumber").Raw(), customer.Map()))

	mailboxes, err := r.Source.MailboxesAndAliases(r.ctx)
	if errors.Is(err, types.ErrNoData) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mailboxes: %w", err)
	}
	return append(out, r.mailboxProducts(mailboxes)...), nil
}

// mailboxProducts returns one product per alias, or one per mailbox without
// aliases.
func (r *run) mailboxProducts(doc tree.Value) []*types.Product {
	var out []*types.Product
	for _, mailbox := range doc.Get("mailboxes").Array() {
		aliases := mailbox.Get("aliases").Array()
		if len(aliases) == 0 {
			uuid := mailbox.Get("mailboxUUID").Str()
			out = append(out, r.accountProduct(uuid, uuid, r.customerID()+" "+uuid,
				types.ProductTypeMailbox, types.DescriptionMailbox, mailbox.Get("virus").Raw(), mailbox.Map()))
			continue
		}
		for _, alias := range aliases {
			aliasID := alias.Get("mailboxAliasId").Str()
			id := "Alias " + aliasID
			out = append(out, r.accountProduct(id, aliasID, id,
				types.ProductTypeMailbox, types.DescriptionMailbox, mailbox.Get("virus").Raw(), mailbox.Map()))
		}
	}
	return out
}
