package enum

type EntityType string

const (
	MESSAGE        EntityType = "MESSAGE"
	CLASSIFICATION EntityType = "CLASSIFICATION"
	CYCLE          EntityType = "CYCLE"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
