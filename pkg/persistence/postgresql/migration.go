package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow configuration: step definitions live as JSONB on the workflow row.
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL,
				status VARCHAR(50) NOT NULL,
				steps JSONB NOT NULL DEFAULT '[]',
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Per-user traversal state; step payloads keyed by stable step id.
			CREATE TABLE progress_records (
				user_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				current_step INT NOT NULL DEFAULT 1,
				completed_steps JSONB NOT NULL DEFAULT '[]',
				step_data JSONB NOT NULL DEFAULT '{}',
				is_complete BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (user_id, workflow_id)
			);

			CREATE INDEX idx_progress_records_updated_at ON progress_records(updated_at);
			CREATE INDEX idx_progress_records_is_complete ON progress_records(is_complete);

			CREATE TABLE orders (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				order_ref VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_orders_user_workflow ON orders(user_id, workflow_id);
			CREATE INDEX idx_orders_status ON orders(status);

			CREATE TABLE gift_redemptions (
				code VARCHAR(255) PRIMARY KEY,
				redeemed_by VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				redeemed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_gift_redemptions_user_workflow ON gift_redemptions(redeemed_by, workflow_id);
		`,
	}
}
