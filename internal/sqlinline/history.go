package sqlinline

const QInsertHistoryRecord = `--sql 5e0c45e0-8022-4e7e-b700-adbc55356c6f
insert into generation_history (
  id,
  job_token,
  media_type,
  model,
  prompt,
  record,
  created_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::jsonb,
  $7::timestamptz
)
on conflict (job_token) do nothing
returning id;
`

const QListHistoryRecords = `--sql 58180f10-82b3-4ed7-87fb-e33ae49b4301
select record
from generation_history
order by created_at desc
limit $1::int;
`

const QSelectHistoryRecord = `--sql d511774a-2d10-4c2e-9057-f101bb4596a8
select record
from generation_history
where id = $1::uuid
limit 1;
`

const QDeleteHistoryRecord = `--sql f5adf586-c796-44e8-9a84-7fac716a2ea3
delete from generation_history
where id = $1::uuid;
`
