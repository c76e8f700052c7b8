package settlement

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/ruralpay/remittance/internal/models"
)

const (
	DefaultQueue = "settlement_queue"
	MessageType  = "pacs.008.001.08"
)

// BuildAdvice renders a completed remittance as a pacs.008 credit transfer
// between the sender and receiver branches.
func BuildAdvice(r *models.Remittance, at time.Time) *pacs_v08.FIToFICustomerCreditTransferV08 {
	settlementDate := at
	if r.RedeemedAt != nil {
		settlementDate = *r.RedeemedAt
	}

	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(r.ToCurrency),
		Value: r.ConvertedAmount.InexactFloat64(),
	}
	remittanceID := common.Max35Text(r.RemittanceID)
	debtorName := common.Max140Text(r.SenderID)
	creditorName := common.Max140Text(r.ReceiverInfo.Name)

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(uuid.New().String()),
			CreDtTm:           common.ISODateTime(at),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INGA",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &remittanceID,
					EndToEndId: remittanceID,
					TxId:       &remittanceID,
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(r.SenderBranchID),
						},
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &debtorName,
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(r.ReceiverBranchID),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &creditorName,
				},
			},
		},
	}
}

// ToXML renders the document with the XML header.
func ToXML(doc any) (string, error) {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(data), nil
}

// Publisher pushes settlement advices onto a Redis list for the clearing integration.
type Publisher struct {
	redis *redis.Client
	queue string
}

func NewPublisher(client *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{redis: client, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, r *models.Remittance, at time.Time) error {
	doc, err := ToXML(BuildAdvice(r, at))
	if err != nil {
		return err
	}
	if err := p.redis.RPush(ctx, p.queue, doc).Err(); err != nil {
		return fmt.Errorf("failed to enqueue settlement advice: %w", err)
	}
	return nil
}
