package blockchain

const escrowContractPlaceholder = "0xESCROW_CONTRACT_ADDRESS"

const resolveGameTransaction = `
import GameEscrow from 0xESCROW_CONTRACT_ADDRESS

transaction(escrowId: String, winner: Address, amount: UFix64) {
	let admin: &GameEscrow.Administrator

	prepare(signer: AuthAccount) {
		self.admin = signer.borrow<&GameEscrow.Administrator>(from: GameEscrow.AdministratorStoragePath)
			?? panic("Could not borrow escrow administrator")
	}

	execute {
		self.admin.resolveGame(escrowId: escrowId, winner: winner, amount: amount)
	}
}
`

const resolvedHeightScript = `
import GameEscrow from 0xESCROW_CONTRACT_ADDRESS

pub fun main(escrowId: String): UInt64? {
	return GameEscrow.resolvedAtHeight(escrowId: escrowId)
}
`

const gameResolvedEvent = "GameEscrow.GameResolved"
