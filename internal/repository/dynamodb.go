package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	pkgconfig "github.com/cloud-wave-best-zizon/stock-order-service/pkg/config"
	"github.com/shopspring/decimal"
)

// DynamoDB caps a single TransactWriteItems call at 100 actions.
const maxTransactItems = 100

const (
	metadataSK     = "METADATA"
	gsi1Index      = "GSI1"
	deleteIntentPK = "DELETE_INTENT"
)

// archiveTimeLayout is fixed width so archive sort keys order by time.
const archiveTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dynamoAPI is the part of *dynamodb.Client the store uses.
type dynamoAPI interface {
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

func NewDynamoDBClient(cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type itemRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	GSI1PK    string    `dynamodbav:"GSI1PK"`
	GSI1SK    string    `dynamodbav:"GSI1SK"`
	ItemID    string    `dynamodbav:"item_id"`
	Name      string    `dynamodbav:"name"`
	UnitPrice string    `dynamodbav:"unit_price"`
	Quantity  int       `dynamodbav:"quantity"`
	OwnerID   string    `dynamodbav:"owner_id"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

type lineRecord struct {
	ItemID    string `dynamodbav:"item_id"`
	ItemName  string `dynamodbav:"item_name"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
}

type orderRecord struct {
	PK              string       `dynamodbav:"PK"`
	SK              string       `dynamodbav:"SK"`
	GSI1PK          string       `dynamodbav:"GSI1PK"`
	GSI1SK          string       `dynamodbav:"GSI1SK"`
	OrderID         string       `dynamodbav:"order_id"`
	CustomerID      string       `dynamodbav:"customer_id"`
	OwnerID         string       `dynamodbav:"owner_id"`
	OrderedAt       time.Time    `dynamodbav:"ordered_at"`
	Lines           []lineRecord `dynamodbav:"lines"`
	Subtotal        string       `dynamodbav:"subtotal"`
	DiscountPercent string       `dynamodbav:"discount_percent"`
	FinalAmount     string       `dynamodbav:"final_amount"`
	Status          string       `dynamodbav:"status"`
	Version         int64        `dynamodbav:"version"`
	CreatedAt       time.Time    `dynamodbav:"created_at"`
	UpdatedAt       time.Time    `dynamodbav:"updated_at"`
}

type historyRecord struct {
	PK              string       `dynamodbav:"PK"`
	SK              string       `dynamodbav:"SK"`
	ArchiveID       string       `dynamodbav:"archive_id"`
	OriginalOrderID string       `dynamodbav:"original_order_id"`
	OrderedAt       time.Time    `dynamodbav:"ordered_at"`
	CustomerID      string       `dynamodbav:"customer_id"`
	CustomerName    string       `dynamodbav:"customer_name"`
	Lines           []lineRecord `dynamodbav:"lines"`
	Subtotal        string       `dynamodbav:"subtotal"`
	DiscountPercent string       `dynamodbav:"discount_percent"`
	FinalAmount     string       `dynamodbav:"final_amount"`
	Status          string       `dynamodbav:"status"`
	OwnerID         string       `dynamodbav:"owner_id"`
	ArchivedAt      time.Time    `dynamodbav:"archived_at"`
}

type customerRecord struct {
	PK         string    `dynamodbav:"PK"`
	SK         string    `dynamodbav:"SK"`
	GSI1PK     string    `dynamodbav:"GSI1PK"`
	GSI1SK     string    `dynamodbav:"GSI1SK"`
	CustomerID string    `dynamodbav:"customer_id"`
	Name       string    `dynamodbav:"name"`
	NIC        string    `dynamodbav:"nic"`
	Address    string    `dynamodbav:"address"`
	ContactNo  string    `dynamodbav:"contact_no"`
	OwnerID    string    `dynamodbav:"owner_id"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func itemKey(itemID string) map[string]types.AttributeValue {
	return key(fmt.Sprintf("ITEM#%s", itemID), metadataSK)
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return key(fmt.Sprintf("ORDER#%s", orderID), metadataSK)
}

func customerKey(customerID string) map[string]types.AttributeValue {
	return key(fmt.Sprintf("CUSTOMER#%s", customerID), metadataSK)
}

func nicKey(nic string) map[string]types.AttributeValue {
	return key(fmt.Sprintf("NIC#%s", nic), metadataSK)
}

func intentSK(orderID string) string {
	return fmt.Sprintf("ORDER#%s", orderID)
}

func intentKey(orderID string) map[string]types.AttributeValue {
	return key(deleteIntentPK, intentSK(orderID))
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", domain.ErrStorage, op, err)
}

func toLineRecords(lines []domain.OrderLine) []lineRecord {
	out := make([]lineRecord, len(lines))
	for i, l := range lines {
		out[i] = lineRecord{ItemID: l.ItemID, ItemName: l.ItemName, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()}
	}
	return out
}

func fromLineRecords(lines []lineRecord) ([]domain.OrderLine, error) {
	out := make([]domain.OrderLine, len(lines))
	for i, l := range lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line %s unit price: %w", l.ItemID, err)
		}
		out[i] = domain.OrderLine{ItemID: l.ItemID, ItemName: l.ItemName, Quantity: l.Quantity, UnitPrice: price}
	}
	return out, nil
}

func parseAmounts(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func newItemRecord(item *domain.Item) itemRecord {
	return itemRecord{
		PK:        fmt.Sprintf("ITEM#%s", item.ItemID),
		SK:        metadataSK,
		GSI1PK:    fmt.Sprintf("USER#%s", item.OwnerID),
		GSI1SK:    fmt.Sprintf("ITEM#%s", item.ItemID),
		ItemID:    item.ItemID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice.String(),
		Quantity:  item.Quantity,
		OwnerID:   item.OwnerID,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func (rec itemRecord) toDomain() (*domain.Item, error) {
	price, err := decimal.NewFromString(rec.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("item %s unit price: %w", rec.ItemID, err)
	}
	return &domain.Item{
		ItemID:    rec.ItemID,
		Name:      rec.Name,
		UnitPrice: price,
		Quantity:  rec.Quantity,
		OwnerID:   rec.OwnerID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func newOrderRecord(o *domain.Order) orderRecord {
	return orderRecord{
		PK:              fmt.Sprintf("ORDER#%s", o.OrderID),
		SK:              metadataSK,
		GSI1PK:          fmt.Sprintf("USER#%s", o.OwnerID),
		GSI1SK:          fmt.Sprintf("ORDER#%s", o.OrderedAt.Format("2006-01-02T15:04:05Z")),
		OrderID:         o.OrderID,
		CustomerID:      o.CustomerID,
		OwnerID:         o.OwnerID,
		OrderedAt:       o.OrderedAt,
		Lines:           toLineRecords(o.Lines),
		Subtotal:        o.Subtotal.String(),
		DiscountPercent: o.DiscountPercent.String(),
		FinalAmount:     o.FinalAmount.String(),
		Status:          string(o.Status),
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (rec orderRecord) toDomain() (*domain.Order, error) {
	lines, err := fromLineRecords(rec.Lines)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", rec.OrderID, err)
	}
	amounts, err := parseAmounts(rec.Subtotal, rec.DiscountPercent, rec.FinalAmount)
	if err != nil {
		return nil, fmt.Errorf("order %s amounts: %w", rec.OrderID, err)
	}
	status, err := domain.ParseOrderStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", rec.OrderID, err)
	}
	return &domain.Order{
		OrderID:         rec.OrderID,
		CustomerID:      rec.CustomerID,
		OwnerID:         rec.OwnerID,
		OrderedAt:       rec.OrderedAt,
		Lines:           lines,
		Subtotal:        amounts[0],
		DiscountPercent: amounts[1],
		FinalAmount:     amounts[2],
		Status:          status,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}, nil
}

func newHistoryRecord(h *domain.OrderHistoryEntry) historyRecord {
	return historyRecord{
		PK:              fmt.Sprintf("HISTORY#%s", h.OriginalOrderID),
		SK:              archiveSK(h),
		ArchiveID:       h.ArchiveID,
		OriginalOrderID: h.OriginalOrderID,
		OrderedAt:       h.OrderedAt,
		CustomerID:      h.CustomerID,
		CustomerName:    h.CustomerName,
		Lines:           toLineRecords(h.Lines),
		Subtotal:        h.Subtotal.String(),
		DiscountPercent: h.DiscountPercent.String(),
		FinalAmount:     h.FinalAmount.String(),
		Status:          string(h.Status),
		OwnerID:         h.OwnerID,
		ArchivedAt:      h.ArchivedAt,
	}
}

func archiveSK(h *domain.OrderHistoryEntry) string {
	return fmt.Sprintf("ARCHIVE#%s#%s", h.ArchivedAt.UTC().Format(archiveTimeLayout), h.ArchiveID)
}

func (rec historyRecord) toDomain() (*domain.OrderHistoryEntry, error) {
	lines, err := fromLineRecords(rec.Lines)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", rec.ArchiveID, err)
	}
	amounts, err := parseAmounts(rec.Subtotal, rec.DiscountPercent, rec.FinalAmount)
	if err != nil {
		return nil, fmt.Errorf("archive %s amounts: %w", rec.ArchiveID, err)
	}
	return &domain.OrderHistoryEntry{
		ArchiveID:       rec.ArchiveID,
		OriginalOrderID: rec.OriginalOrderID,
		OrderedAt:       rec.OrderedAt,
		CustomerID:      rec.CustomerID,
		CustomerName:    rec.CustomerName,
		Lines:           lines,
		Subtotal:        amounts[0],
		DiscountPercent: amounts[1],
		FinalAmount:     amounts[2],
		Status:          domain.OrderStatus(rec.Status),
		OwnerID:         rec.OwnerID,
		ArchivedAt:      rec.ArchivedAt,
	}, nil
}

func (r *DynamoStore) getRecord(ctx context.Context, k map[string]types.AttributeValue, out any) (bool, error) {
	res, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, storageError("get item", err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, storageError("unmarshal record", err)
	}
	return true, nil
}

func (r *DynamoStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var out []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storageError("query", err)
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

func (r *DynamoStore) CreateItem(ctx context.Context, item *domain.Item) error {
	av, err := attributevalue.MarshalMap(newItemRecord(item))
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: item %s", ErrAlreadyExists, item.ItemID)
	}
	if err != nil {
		return storageError("put item", err)
	}
	return nil
}

func (r *DynamoStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var rec itemRecord
	found, err := r.getRecord(ctx, itemKey(itemID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NotFoundError("item", itemID)
	}
	return rec.toDomain()
}

func (r *DynamoStore) UpdateItemDetails(ctx context.Context, item *domain.Item) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      itemKey(item.ItemID),
		UpdateExpression:         aws.String("SET #name = :name, unit_price = :price, updated_at = :updated"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#name": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":    &types.AttributeValueMemberS{Value: item.Name},
			":price":   &types.AttributeValueMemberS{Value: item.UnitPrice.String()},
			":updated": &types.AttributeValueMemberS{Value: item.UpdatedAt.Format(time.RFC3339Nano)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return domain.NotFoundError("item", item.ItemID)
	}
	if err != nil {
		return storageError("update item", err)
	}
	return nil
}

func (r *DynamoStore) ListItems(ctx context.Context, ownerID string) ([]domain.Item, error) {
	raw, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Index),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", ownerID)},
			":prefix": &types.AttributeValueMemberS{Value: "ITEM#"},
		},
	})
	if err != nil {
		return nil, err
	}
	var recs []itemRecord
	if err := attributevalue.UnmarshalListOfMaps(raw, &recs); err != nil {
		return nil, storageError("unmarshal items", err)
	}
	items := make([]domain.Item, 0, len(recs))
	for _, rec := range recs {
		item, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (r *DynamoStore) DeleteItem(ctx context.Context, itemID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(itemID),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return domain.NotFoundError("item", itemID)
	}
	if err != nil {
		return storageError("delete item", err)
	}
	return nil
}

func newCustomerRecord(c *domain.Customer) customerRecord {
	return customerRecord{
		PK:         fmt.Sprintf("CUSTOMER#%s", c.CustomerID),
		SK:         metadataSK,
		GSI1PK:     fmt.Sprintf("USER#%s", c.OwnerID),
		GSI1SK:     fmt.Sprintf("CUSTOMER#%s", c.CustomerID),
		CustomerID: c.CustomerID,
		Name:       c.Name,
		NIC:        c.NIC,
		Address:    c.Address,
		ContactNo:  c.ContactNo,
		OwnerID:    c.OwnerID,
		CreatedAt:  c.CreatedAt,
	}
}

func (rec customerRecord) toDomain() *domain.Customer {
	return &domain.Customer{
		CustomerID: rec.CustomerID,
		Name:       rec.Name,
		NIC:        rec.NIC,
		Address:    rec.Address,
		ContactNo:  rec.ContactNo,
		OwnerID:    rec.OwnerID,
		CreatedAt:  rec.CreatedAt,
	}
}

func (r *DynamoStore) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	av, err := attributevalue.MarshalMap(newCustomerRecord(c))
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	guard := nicKey(c.NIC)
	guard["customer_id"] = &types.AttributeValueMemberS{Value: c.CustomerID}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return fmt.Errorf("%w: customer %s or NIC %s", ErrAlreadyExists, c.CustomerID, c.NIC)
	}
	if err != nil {
		return storageError("create customer", err)
	}
	return nil
}

func (r *DynamoStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var rec customerRecord
	found, err := r.getRecord(ctx, customerKey(customerID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NotFoundError("customer", customerID)
	}
	return rec.toDomain(), nil
}

func (r *DynamoStore) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	raw, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Index),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", ownerID)},
			":prefix": &types.AttributeValueMemberS{Value: "CUSTOMER#"},
		},
	})
	if err != nil {
		return nil, err
	}
	var recs []customerRecord
	if err := attributevalue.UnmarshalListOfMaps(raw, &recs); err != nil {
		return nil, storageError("unmarshal customers", err)
	}
	customers := make([]domain.Customer, 0, len(recs))
	for _, rec := range recs {
		customers = append(customers, *rec.toDomain())
	}
	return customers, nil
}

// UpdateCustomer rewrites the customer record and, when the NIC changes, moves the
// NIC guard row in the same transaction.
func (r *DynamoStore) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	current, err := r.GetCustomer(ctx, c.CustomerID)
	if err != nil {
		return err
	}
	writes := customerUpdateWrites(r.tableName, current.NIC, c)

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return customerUpdateError(tce, c)
	}
	if err != nil {
		return storageError("update customer", err)
	}
	return nil
}

func customerUpdateWrites(table, previousNIC string, c *domain.Customer) []types.TransactWriteItem {
	writes := []types.TransactWriteItem{{Update: &types.Update{
		TableName:           aws.String(table),
		Key:                 customerKey(c.CustomerID),
		UpdateExpression:    aws.String("SET #name = :name, #nic = :nic, #address = :address, #contact = :contact"),
		ConditionExpression: aws.String("attribute_exists(PK) AND #nic = :previous"),
		ExpressionAttributeNames: map[string]string{
			"#name":    "name",
			"#nic":     "nic",
			"#address": "address",
			"#contact": "contact_no",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":     &types.AttributeValueMemberS{Value: c.Name},
			":nic":      &types.AttributeValueMemberS{Value: c.NIC},
			":address":  &types.AttributeValueMemberS{Value: c.Address},
			":contact":  &types.AttributeValueMemberS{Value: c.ContactNo},
			":previous": &types.AttributeValueMemberS{Value: previousNIC},
		},
	}}}
	if c.NIC == previousNIC {
		return writes
	}

	guard := nicKey(c.NIC)
	guard["customer_id"] = &types.AttributeValueMemberS{Value: c.CustomerID}
	return append(writes,
		types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(table),
			Item:                guard,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}},
		types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(table),
			Key:       nicKey(previousNIC),
		}},
	)
}

// customerUpdateError maps the cancellation of a customerUpdateWrites transaction.
func customerUpdateError(tce *types.TransactionCanceledException, c *domain.Customer) error {
	for i, reason := range tce.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case "", "None":
			continue
		case "ConditionalCheckFailed":
			if i == 0 {
				return fmt.Errorf("%w: customer %s", ErrVersionMismatch, c.CustomerID)
			}
			return fmt.Errorf("%w: customer with NIC %s", ErrAlreadyExists, c.NIC)
		case "TransactionConflict":
			return fmt.Errorf("%w: customer %s", ErrVersionMismatch, c.CustomerID)
		}
	}
	return storageError("update customer", tce)
}

func (r *DynamoStore) DeleteCustomer(ctx context.Context, customerID string) error {
	c, err := r.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(r.tableName),
				Key:                 customerKey(customerID),
				ConditionExpression: aws.String("attribute_exists(PK)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       nicKey(c.NIC),
			}},
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return domain.NotFoundError("customer", customerID)
	}
	if err != nil {
		return storageError("delete customer", err)
	}
	return nil
}

func (r *DynamoStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var rec orderRecord
	found, err := r.getRecord(ctx, orderKey(orderID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NotFoundError("order", orderID)
	}
	return rec.toDomain()
}

func (r *DynamoStore) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	raw, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Index),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", ownerID)},
			":prefix": &types.AttributeValueMemberS{Value: "ORDER#"},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var recs []orderRecord
	if err := attributevalue.UnmarshalListOfMaps(raw, &recs); err != nil {
		return nil, storageError("unmarshal orders", err)
	}
	orders := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		o, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *DynamoStore) FindHistory(ctx context.Context, originalOrderID string) (*domain.OrderHistoryEntry, error) {
	res, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("HISTORY#%s", originalOrderID)},
			":prefix": &types.AttributeValueMemberS{Value: "ARCHIVE#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, storageError("query history", err)
	}
	if len(res.Items) == 0 {
		return nil, domain.NotFoundError("order history", originalOrderID)
	}
	var rec historyRecord
	if err := attributevalue.UnmarshalMap(res.Items[0], &rec); err != nil {
		return nil, storageError("unmarshal history", err)
	}
	return rec.toDomain()
}

func (r *DynamoStore) ListHistory(ctx context.Context, originalOrderID string) ([]domain.OrderHistoryEntry, error) {
	raw, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("HISTORY#%s", originalOrderID)},
			":prefix": &types.AttributeValueMemberS{Value: "ARCHIVE#"},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	var recs []historyRecord
	if err := attributevalue.UnmarshalListOfMaps(raw, &recs); err != nil {
		return nil, storageError("unmarshal history", err)
	}
	entries := make([]domain.OrderHistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

type intentRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	OrderID   string    `dynamodbav:"order_id"`
	ArchiveID string    `dynamodbav:"archive_id"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

func (r *DynamoStore) ListDeleteIntents(ctx context.Context) ([]DeleteIntent, error) {
	raw, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: deleteIntentPK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	var recs []intentRecord
	if err := attributevalue.UnmarshalListOfMaps(raw, &recs); err != nil {
		return nil, storageError("unmarshal delete intents", err)
	}
	intents := make([]DeleteIntent, 0, len(recs))
	for _, rec := range recs {
		intents = append(intents, DeleteIntent{OrderID: rec.OrderID, ArchiveID: rec.ArchiveID, CreatedAt: rec.CreatedAt})
	}
	return intents, nil
}

// transactOp remembers what each TransactWriteItem does so cancellation reasons can be mapped back.
type transactOp struct {
	delta *StockDelta
	order *OrderWrite
	hist  *domain.OrderHistoryEntry
}

// Commit applies m through one TransactWriteItems call. Stock deltas are guarded by
// "quantity >= :need" so check and decrement happen in a single conditional write.
func (r *DynamoStore) Commit(ctx context.Context, m Mutation) (CommitResult, error) {
	deltas := MergeDeltas(m.Deltas)
	m.Deltas = deltas
	if m.writeCount() > maxTransactItems {
		return CommitResult{}, fmt.Errorf("%w: %d writes", ErrTooManyWrites, m.writeCount())
	}

	now := r.now()
	var (
		writes []types.TransactWriteItem
		ops    []transactOp
	)

	for i := range deltas {
		d := deltas[i]
		need := 0
		if d.Delta < 0 {
			need = -d.Delta
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(r.tableName),
			Key:                      itemKey(d.ItemID),
			UpdateExpression:         aws.String("SET #qty = #qty + :delta, updated_at = :now"),
			ConditionExpression:      aws.String("attribute_exists(PK) AND #qty >= :need"),
			ExpressionAttributeNames: map[string]string{"#qty": "quantity"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": numberValue(int64(d.Delta)),
				":need":  numberValue(int64(need)),
				":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}})
		ops = append(ops, transactOp{delta: &deltas[i]})
	}

	var stored *domain.Order
	if w := m.Order; w != nil {
		write, next, err := r.orderWrite(w)
		if err != nil {
			return CommitResult{}, err
		}
		writes = append(writes, write)
		ops = append(ops, transactOp{order: w})
		stored = next
	}

	if h := m.History; h != nil {
		av, err := attributevalue.MarshalMap(newHistoryRecord(h))
		if err != nil {
			return CommitResult{}, fmt.Errorf("failed to marshal history entry: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}})
		ops = append(ops, transactOp{hist: h})
	}

	if in := m.PutIntent; in != nil {
		av, err := attributevalue.MarshalMap(intentRecord{
			PK:        deleteIntentPK,
			SK:        intentSK(in.OrderID),
			OrderID:   in.OrderID,
			ArchiveID: in.ArchiveID,
			CreatedAt: now,
		})
		if err != nil {
			return CommitResult{}, fmt.Errorf("failed to marshal delete intent: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{TableName: aws.String(r.tableName), Item: av}})
		ops = append(ops, transactOp{})
	}
	if m.ClearIntent != "" {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{TableName: aws.String(r.tableName), Key: intentKey(m.ClearIntent)}})
		ops = append(ops, transactOp{})
	}

	if len(writes) == 0 {
		return CommitResult{Quantities: map[string]int{}}, nil
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		return CommitResult{}, r.commitError(err, ops)
	}

	// The transaction is durable from here on, so a failed read only drops the quantity.
	result := CommitResult{Quantities: make(map[string]int, len(deltas)), Order: stored}
	for _, d := range deltas {
		item, err := r.GetItem(ctx, d.ItemID)
		if err != nil {
			continue
		}
		result.Quantities[d.ItemID] = item.Quantity
	}
	return result, nil
}

func (r *DynamoStore) orderWrite(w *OrderWrite) (types.TransactWriteItem, *domain.Order, error) {
	switch w.Op {
	case OrderCreate, OrderReplace:
		next := w.Order.Clone()
		cond := aws.String("attribute_not_exists(PK)")
		var (
			names  map[string]string
			values map[string]types.AttributeValue
		)
		if w.Op == OrderCreate {
			next.Version = 1
		} else {
			next.Version = w.Order.Version + 1
			cond = aws.String("#version = :expected")
			names = map[string]string{"#version": "version"}
			values = map[string]types.AttributeValue{":expected": numberValue(w.Order.Version)}
		}
		av, err := attributevalue.MarshalMap(newOrderRecord(next))
		if err != nil {
			return types.TransactWriteItem{}, nil, fmt.Errorf("failed to marshal order: %w", err)
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                           aws.String(r.tableName),
			Item:                                av,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            names,
			ExpressionAttributeValues:           values,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}}, next, nil
	case OrderDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                aws.String(r.tableName),
			Key:                      orderKey(w.Order.OrderID),
			ConditionExpression:      aws.String("#version = :expected"),
			ExpressionAttributeNames: map[string]string{"#version": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": numberValue(w.Order.Version),
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}}, nil, nil
	default:
		return types.TransactWriteItem{}, nil, fmt.Errorf("unknown order operation %d", w.Op)
	}
}

func (r *DynamoStore) commitError(err error, ops []transactOp) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return storageError("transact write", err)
	}
	for i, reason := range tce.CancellationReasons {
		if i >= len(ops) {
			break
		}
		switch aws.ToString(reason.Code) {
		case "", "None":
			continue
		case "TransactionConflict":
			return fmt.Errorf("%w: %s", ErrVersionMismatch, aws.ToString(reason.Message))
		case "ConditionalCheckFailed":
			return conditionFailure(ops[i], reason.Item)
		default:
			return storageError("transact write", fmt.Errorf("%s: %s", aws.ToString(reason.Code), aws.ToString(reason.Message)))
		}
	}
	return storageError("transact write", err)
}

func conditionFailure(op transactOp, old map[string]types.AttributeValue) error {
	switch {
	case op.delta != nil:
		if len(old) == 0 {
			return domain.NotFoundError("item", op.delta.ItemID)
		}
		var rec itemRecord
		if err := attributevalue.UnmarshalMap(old, &rec); err != nil {
			return storageError("unmarshal item", err)
		}
		return &domain.StockError{ItemID: rec.ItemID, ItemName: rec.Name, Requested: -op.delta.Delta, Available: rec.Quantity}
	case op.order != nil:
		id := op.order.Order.OrderID
		if op.order.Op == OrderCreate {
			return fmt.Errorf("%w: order %s", ErrAlreadyExists, id)
		}
		if len(old) == 0 {
			return domain.NotFoundError("order", id)
		}
		return fmt.Errorf("%w: order %s", ErrVersionMismatch, id)
	case op.hist != nil:
		return fmt.Errorf("%w: archive entry %s", ErrAlreadyExists, op.hist.ArchiveID)
	default:
		return storageError("transact write", errors.New("condition failed on intent record"))
	}
}
