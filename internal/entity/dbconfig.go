package entity

import "time"

// DBConfig is a per-server connection document from the dbConfigs collection.
type DBConfig struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Server    string    `bson:"server" json:"server"` // server key referenced by tasks
	Host      string    `bson:"host" json:"host"`
	Port      int       `bson:"port,omitempty" json:"port,omitempty"`
	Instance  string    `bson:"instance,omitempty" json:"instance,omitempty"` // named instance, used when Port is 0
	User      string    `bson:"user" json:"user"`
	Password  string    `bson:"password" json:"-"`
	Database  string    `bson:"database" json:"database"`
	Encrypt   *bool     `bson:"encrypt,omitempty" json:"encrypt,omitempty"` // nil = automatic (disabled for bare IPv4 hosts)
	TrustCert bool      `bson:"trustCert,omitempty" json:"trustCert,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
