package mongo

// objectModel is the document stored per object. Value holds the JSON
// encoding verbatim so decoding matches every other backend.
type objectModel struct {
	Key   string `bson:"_id"`
	Kind  string `bson:"kind"`
	Value string `bson:"value"`
}
