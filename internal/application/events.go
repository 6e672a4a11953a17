package application

// PublishedEventNames lists every event name the catalog emits. Outbox
// handler registration iterates it so a new event only needs to be added
// here.
func PublishedEventNames() []string {
	return []string{
		"product.created",
		"product.metadata_updated",
		"product.options_updated",
		"product.published",
		"product.unpublished",
		"product.archived",
		"product.collections_updated",
		"product.visible_drop_scheduled",
		"product.hidden_drop_scheduled",
		"product.drop_cancelled",
		"product.drop_completed",

		"variant.created",
		"variant.sku_updated",
		"variant.price_updated",
		"variant.sale_updated",
		"variant.inventory_updated",
		"variant.options_updated",
		"variant.published",
		"variant.unpublished",
		"variant.archived",

		"collection.created",
		"collection.metadata_updated",
		"collection.published",
		"collection.unpublished",
		"collection.archived",

		"slug.reserved",
		"slug.released",
		"slug.redirected",

		"sku.activated",
		"sku.released",

		"positions.created",
		"positions.item_added",
		"positions.item_removed",
		"positions.reordered",
		"positions.archived",

		"schedule.created",
		"schedule.execution_started",
		"schedule.executed",
		"schedule.retried",
		"schedule.failed",
		"schedule.cancelled",
		"schedule.rescheduled",
	}
}
