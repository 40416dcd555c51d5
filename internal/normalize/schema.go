package normalize

import "SalesAnalytics/internal/domain"

// Mapping binds one source field name to a canonical column.
type Mapping struct {
	Source string
	Field  domain.Field
}

// Schema is the declared field mapping of one feed schema version. Mappings
// are applied in order; when several source names map to the same column the
// first present one wins.
type Schema struct {
	Name     string
	Mappings []Mapping
}

// SchemaWBStatisticsV1 is the marketplace statistics sales export.
var SchemaWBStatisticsV1 = Schema{
	Name: "wb-statistics-v1",
	Mappings: []Mapping{
		{Source: "srid", Field: domain.FieldOrderID},
		{Source: "date", Field: domain.FieldTimestamp},
		{Source: "lastChangeDate", Field: domain.FieldLastChangeDate},
		{Source: "warehouseType", Field: domain.FieldWarehouseType},
		{Source: "warehouseName", Field: domain.FieldWarehouseName},
		{Source: "warehouse", Field: domain.FieldWarehouseName},
		{Source: "regionName", Field: domain.FieldRegion},
		{Source: "category", Field: domain.FieldCategory},
		{Source: "subject", Field: domain.FieldSubcategory},
		{Source: "brand", Field: domain.FieldBrand},
		{Source: "supplierArticle", Field: domain.FieldSellerSKU},
		{Source: "totalPrice", Field: domain.FieldUnitPrice},
		{Source: "spp", Field: domain.FieldDiscountPercent},
		{Source: "isCancel", Field: domain.FieldIsCancelled},
	},
}
