package models

import (
	"log"

	"github.com/mmdatafocus/rta_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Scheme{}, &SchemeAlias{}, &BankMandate{},
		&Folio{}, &Transaction{}, &Registration{},
		&LedgerEvent{},
	); err != nil {
		return err
	}
	for _, kind := range SequenceKinds {
		if err := db.Table(kind.TicketTable()).AutoMigrate(&SequenceTicket{}); err != nil {
			return err
		}
	}
	return nil
}
