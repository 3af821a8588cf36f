package model

import "time"

type CustomerType string

const (
	CustomerTypeIndividual CustomerType = "INDIVIDUAL"
	CustomerTypeDealer     CustomerType = "DEALER"
)

type Customer struct {
	ID              string       `db:"id" json:"id"`
	NationalID      *string      `db:"national_id" json:"national_id"`
	CustomerType    CustomerType `db:"customer_type" json:"customer_type"`
	Name            string       `db:"name" json:"name"`
	BusinessNameKey *string      `db:"business_name_key" json:"-"`
	NTN             string       `db:"ntn" json:"ntn"`
	Phone           string       `db:"phone" json:"phone"`
	Address         string       `db:"address" json:"address"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}
