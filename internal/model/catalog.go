package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Attributes holds free-form item properties (year, mileage, color...).
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
	return json.Unmarshal(data, a)
}

type CatalogItem struct {
	ID         string         `db:"id" json:"id"`
	TenantID   string         `db:"tenant_id" json:"tenantId"`
	Seq        int64          `db:"seq" json:"-"`
	Title      string         `db:"title" json:"title"`
	Price      float64        `db:"price" json:"price"`
	Attributes Attributes     `db:"attributes" json:"attributes"`
	MediaURIs  pq.StringArray `db:"media_uris" json:"mediaUris"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

type FAQEntry struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	Seq       int64     `db:"seq" json:"-"`
	Trigger   string    `db:"trigger_phrase" json:"trigger"`
	Answer    string    `db:"answer" json:"answer"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
